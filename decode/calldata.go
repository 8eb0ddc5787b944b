package decode

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FieldValue is one decoded calldata argument rendered for inspection.
type FieldValue interface {
	Render() string
}

// NamedField pairs an argument name with its decoded value.
type NamedField struct {
	Name  string
	Value FieldValue
}

// SimpleField is a scalar argument (numbers, booleans, strings).
type SimpleField struct {
	Value string
}

func (f SimpleField) Render() string { return f.Value }

// AddressField is an address argument in checksummed form.
type AddressField struct {
	Value common.Address
}

func (f AddressField) Render() string { return f.Value.Hex() }

// BytesField is a fixed or dynamic bytes argument.
type BytesField struct {
	Value []byte
}

func (f BytesField) Render() string { return hexutil.Encode(f.Value) }

// ArrayField is a slice or array argument.
type ArrayField struct {
	Elements []FieldValue
}

func (f ArrayField) Render() string {
	parts := make([]string, len(f.Elements))
	for i, e := range f.Elements {
		parts[i] = e.Render()
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// StructField is a tuple argument.
type StructField struct {
	Fields []NamedField
}

func (f StructField) Render() string {
	parts := make([]string, 0, len(f.Fields))
	for _, nf := range f.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", nf.Name, nf.Value.Render()))
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// CalldataCall is a human-readable decoding of a single function call.
type CalldataCall struct {
	Target common.Address
	Method string
	Inputs []NamedField
}

// DecodeCalldata decodes the payload of an operation against the given
// contract ABI into the method signature and its argument values.
func DecodeCalldata(op Operation, contractABI *abi.ABI) (*CalldataCall, error) {
	if len(op.Payload) < 4 {
		return nil, newDecodeError("payload too short for a method selector", nil)
	}
	method, err := contractABI.MethodById(op.Payload[:4])
	if err != nil {
		return nil, newDecodeError("unknown method selector", err)
	}
	args := make(map[string]any)
	if err := method.Inputs.UnpackIntoMap(args, op.Payload[4:]); err != nil {
		return nil, newDecodeError("invalid method arguments", err)
	}

	inputs := make([]NamedField, len(method.Inputs))
	for i, input := range method.Inputs {
		arg, ok := args[input.Name]
		if !ok {
			return nil, newDecodeError(fmt.Sprintf("missing argument %q", input.Name), nil)
		}
		inputs[i] = NamedField{Name: input.Name, Value: decodeArg(&input.Type, arg)}
	}

	return &CalldataCall{
		Target: op.Target,
		Method: method.Sig,
		Inputs: inputs,
	}, nil
}

func decodeArg(argAbi *abi.Type, argVal any) FieldValue {
	switch argAbi.T {
	case abi.FixedBytesTy, abi.BytesTy, abi.AddressTy:
		argArrTyp := reflect.ValueOf(argVal)
		argArr := make([]byte, argArrTyp.Len())
		for i := range argArrTyp.Len() {
			argArr[i] = byte(argArrTyp.Index(i).Uint())
		}
		if argAbi.T == abi.AddressTy {
			return AddressField{Value: common.BytesToAddress(argArr)}
		}

		return BytesField{Value: argArr}
	case abi.TupleTy:
		return decodeStruct(argAbi, argVal)
	case abi.SliceTy, abi.ArrayTy:
		return decodeArray(argAbi, argVal)
	default:
		return SimpleField{Value: fmt.Sprintf("%v", argVal)}
	}
}

func decodeStruct(argAbi *abi.Type, argVal any) StructField {
	argTyp := argAbi.GetType()
	fields := make([]NamedField, 0, argTyp.NumField())
	for i := range argTyp.NumField() {
		if !argTyp.Field(i).IsExported() {
			continue
		}
		name := argTyp.Field(i).Name
		fieldVal := reflect.ValueOf(argVal).FieldByName(name)
		fields = append(fields, NamedField{
			Name:  name,
			Value: decodeArg(argAbi.TupleElems[i], fieldVal.Interface()),
		})
	}

	return StructField{Fields: fields}
}

func decodeArray(argAbi *abi.Type, argVal any) ArrayField {
	argTyp := reflect.ValueOf(argVal)
	elements := make([]FieldValue, argTyp.Len())
	for i := range argTyp.Len() {
		elements[i] = decodeArg(argAbi.Elem, argTyp.Index(i).Interface())
	}

	return ArrayField{Elements: elements}
}
