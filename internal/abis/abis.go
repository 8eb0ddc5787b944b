// Package abis holds the parsed contract ABIs the engine decodes against.
//
// Selector constants are derived from the parsed ABIs at init so the 4-byte
// identifiers can never drift from the canonical signatures.
package abis

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const safeABIJSON = `[
	{"type":"function","name":"nonce","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getThreshold","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getOwners","inputs":[],"outputs":[{"name":"","type":"address[]"}],"stateMutability":"view"},
	{"type":"function","name":"isOwner","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"execTransaction","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}
	],"outputs":[{"name":"success","type":"bool"}],"stateMutability":"payable"}
]`

const multiSendABIJSON = `[
	{"type":"function","name":"multiSend","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[],"stateMutability":"payable"}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"increaseAllowance","inputs":[{"name":"spender","type":"address"},{"name":"addedValue","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"}
]`

const rolesABIJSON = `[
	{"type":"function","name":"execTransactionWithRole","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"roleKey","type":"bytes32"},
		{"name":"shouldRevert","type":"bool"}
	],"outputs":[{"name":"success","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"execTransactionWithRoleReturnData","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"roleKey","type":"bytes32"},
		{"name":"shouldRevert","type":"bool"}
	],"outputs":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"stateMutability":"nonpayable"},
	{"type":"error","name":"ConditionViolation","inputs":[{"name":"status","type":"uint8"},{"name":"info","type":"bytes32"}]},
	{"type":"error","name":"NotAuthorized","inputs":[{"name":"sender","type":"address"}]}
]`

var (
	// Safe is the minimal ABI surface of the multisignature wallet contract.
	Safe abi.ABI
	// MultiSend is the batch dispatch contract ABI.
	MultiSend abi.ABI
	// ERC20 covers the standard token interface including the OpenZeppelin
	// increaseAllowance extension.
	ERC20 abi.ABI
	// Roles is the delegated-permission modifier ABI, including its custom
	// errors used for revert decoding.
	Roles abi.ABI
)

var (
	// MultiSendSelector identifies multiSend(bytes).
	MultiSendSelector [4]byte
	// ApproveSelector identifies approve(address,uint256).
	ApproveSelector [4]byte
	// IncreaseAllowanceSelector identifies increaseAllowance(address,uint256).
	IncreaseAllowanceSelector [4]byte
)

func init() {
	Safe = mustParse(safeABIJSON)
	MultiSend = mustParse(multiSendABIJSON)
	ERC20 = mustParse(erc20ABIJSON)
	Roles = mustParse(rolesABIJSON)

	copy(MultiSendSelector[:], MultiSend.Methods["multiSend"].ID)
	copy(ApproveSelector[:], ERC20.Methods["approve"].ID)
	copy(IncreaseAllowanceSelector[:], ERC20.Methods["increaseAllowance"].ID)
}

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return parsed
}
