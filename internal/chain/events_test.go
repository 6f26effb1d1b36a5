package chain

import (
	"context"
	"strings"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"taostats/internal/scale"
)

func typeID(n uint64) types.Si1LookupTypeID {
	return types.NewSi1LookupTypeIDFromUInt(n)
}

func namedField(name string, typ uint64) types.Si1Field {
	return types.Si1Field{HasName: true, Name: types.Text(name), Type: typeID(typ)}
}

func typedField(typeName string, typ uint64) types.Si1Field {
	return types.Si1Field{HasTypeName: true, TypeName: types.Text(typeName), Type: typeID(typ)}
}

func variantOf(name string, index uint8, docs string, fields ...types.Si1Field) types.Si1Variant {
	v := types.Si1Variant{Name: types.Text(name), Index: types.U8(index), Fields: fields}
	if docs != "" {
		v.Docs = []types.Text{types.Text(docs)}
	}
	return v
}

func portable(id uint64, path string, def types.Si1TypeDef) types.PortableTypeV14 {
	var p types.Si1Path
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			p = append(p, types.Text(part))
		}
	}
	return types.PortableTypeV14{ID: typeID(id), Type: types.Si1Type{Path: p, Def: def}}
}

func primitiveDef(p types.Si0TypeDefPrimitive) types.Si1TypeDef {
	return types.Si1TypeDef{IsPrimitive: true, Primitive: types.Si1TypeDefPrimitive{Si0TypeDefPrimitive: p}}
}

func compositeDef(fields ...types.Si1Field) types.Si1TypeDef {
	return types.Si1TypeDef{IsComposite: true, Composite: types.Si1TypeDefComposite{Fields: fields}}
}

func variantDef(variants ...types.Si1Variant) types.Si1TypeDef {
	return types.Si1TypeDef{IsVariant: true, Variant: types.Si1TypeDefVariant{Variants: variants}}
}

const (
	testSubtensorIndex   = 7
	testErrNotEnoughDocs = "The caller is requesting to unstake more than they have."
)

// testMetadata is a V14 runtime with the System pallet at 0 and a cut down
// SubtensorModule at 7 that has calls, events and errors.
func testMetadata() hexutil.Bytes {
	lookup := []types.PortableTypeV14{
		portable(0, "", primitiveDef(types.IsU8)),
		portable(1, "", types.Si1TypeDef{IsArray: true, Array: types.Si1TypeDefArray{Len: 4, Type: typeID(0)}}),
		portable(2, "sp_runtime.ModuleError", compositeDef(namedField("index", 0), namedField("error", 1))),
		portable(3, "sp_runtime.TokenError", variantDef(
			variantOf("FundsUnavailable", 0, ""),
			variantOf("OnlyProvider", 1, ""),
		)),
		portable(4, "sp_runtime.DispatchError", variantDef(
			variantOf("Other", 0, ""),
			variantOf("CannotLookup", 1, ""),
			variantOf("BadOrigin", 2, ""),
			variantOf("Module", 3, "", typedField("ModuleError", 2)),
			variantOf("ConsumerRemaining", 4, ""),
			variantOf("NoProviders", 5, ""),
			variantOf("TooManyConsumers", 6, ""),
			variantOf("Token", 7, "", typedField("TokenError", 3)),
		)),
		portable(5, "", primitiveDef(types.IsU64)),
		portable(6, "frame_support.dispatch.DispatchInfo", compositeDef(
			namedField("weight", 5), namedField("class", 0), namedField("pays_fee", 0),
		)),
		portable(7, "frame_system.pallet.Event", variantDef(
			variantOf("ExtrinsicSuccess", 0, "", namedField("dispatch_info", 6)),
			variantOf("ExtrinsicFailed", 1, "", namedField("dispatch_error", 4), namedField("dispatch_info", 6)),
		)),
		portable(8, "pallet_subtensor.pallet.Error", variantDef(
			variantOf("HotKeyAccountNotExists", 0, "The hotkey does not exist."),
			variantOf("NotEnoughStakeToWithdraw", 1, testErrNotEnoughDocs),
		)),
		portable(9, "pallet_subtensor.pallet.Call", variantDef(
			variantOf("add_stake", 2, ""),
			variantOf("add_stake_limit", 88, ""),
		)),
		portable(10, "pallet_subtensor.pallet.Event", variantDef(
			variantOf("StakeAdded", 2, "", namedField("amount", 5)),
		)),
	}
	meta := types.Metadata{
		MagicNumber: types.MagicNumber,
		Version:     14,
		AsMetadataV14: types.MetadataV14{
			Lookup: types.PortableRegistryV14{Types: lookup},
			Pallets: []types.PalletMetadataV14{
				{Name: "System", HasEvents: true, Events: types.EventMetadataV14{Type: typeID(7)}, Index: 0},
				{
					Name:      "SubtensorModule",
					HasCalls:  true,
					Calls:     types.FunctionMetadataV14{Type: typeID(9)},
					HasEvents: true,
					Events:    types.EventMetadataV14{Type: typeID(10)},
					HasErrors: true,
					Errors:    types.ErrorMetadataV14{Type: typeID(8)},
					Index:     testSubtensorIndex,
				},
			},
			Extrinsic: types.ExtrinsicV14{Type: typeID(0), Version: 4},
			Type:      typeID(0),
		},
	}
	raw, err := codec.Encode(meta)
	if err != nil {
		panic(err)
	}
	return raw
}

var testDispatchInfo = scale.NewEncoder().U64(125_000_000).U8(0).U8(0).Bytes()

func eventRecordBytes(extrinsic uint32, pallet, event uint8, fields []byte) []byte {
	return scale.NewEncoder().
		U8(0).U32(extrinsic). // Phase::ApplyExtrinsic
		U8(pallet).U8(event).
		Raw(fields).
		Compact(0). // topics
		Bytes()
}

func eventsBytes(records ...[]byte) []byte {
	e := scale.NewEncoder().Compact(uint64(len(records)))
	for _, r := range records {
		e.Raw(r)
	}
	return e.Bytes()
}

func successEvent(extrinsic uint32) []byte {
	return eventRecordBytes(extrinsic, 0, 0, testDispatchInfo)
}

func failedEvent(extrinsic uint32, dispatchError []byte) []byte {
	fields := append(append([]byte(nil), dispatchError...), testDispatchInfo...)
	return eventRecordBytes(extrinsic, 0, 1, fields)
}

func moduleDispatchError(pallet, code uint8) []byte {
	return scale.NewEncoder().U8(3).U8(pallet).Raw([]byte{code, 0, 0, 0}).Bytes()
}

func stakeAddedEvent(extrinsic uint32) []byte {
	return eventRecordBytes(extrinsic, testSubtensorIndex, 2, scale.EncodeU64(5_000_000_000))
}

func TestEventInspectorReportsSuccess(t *testing.T) {
	c := newFakeChain(2)
	block := c.blocks[2].hash
	c.events[block] = eventsBytes(successEvent(0), stakeAddedEvent(1), successEvent(1))
	node := newTestNode(t, c)

	derr, err := NewEventInspector(node).DispatchResult(context.Background(), block, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if derr != nil {
		t.Fatalf("expected success, got %v", derr)
	}
}

func TestEventInspectorDecodesModuleError(t *testing.T) {
	c := newFakeChain(2)
	block := c.blocks[2].hash
	c.events[block] = eventsBytes(
		successEvent(0),
		failedEvent(1, moduleDispatchError(testSubtensorIndex, 1)),
	)
	node := newTestNode(t, c)

	derr, err := NewEventInspector(node).DispatchResult(context.Background(), block, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if derr == nil || !derr.Module {
		t.Fatalf("expected module error, got %+v", derr)
	}
	if derr.Section != "SubtensorModule" || derr.Name != "NotEnoughStakeToWithdraw" {
		t.Fatalf("decoded %s.%s", derr.Section, derr.Name)
	}
	want := "SubtensorModule.NotEnoughStakeToWithdraw: " + testErrNotEnoughDocs
	if derr.Error() != want {
		t.Fatalf("error = %q, want %q", derr.Error(), want)
	}
}

func TestEventInspectorNonModuleErrors(t *testing.T) {
	cases := []struct {
		name  string
		error []byte
		want  string
	}{
		{"bad origin", []byte{2}, "BadOrigin"},
		{"token", []byte{7, 0}, "Token(FundsUnavailable)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newFakeChain(1)
			block := c.blocks[1].hash
			c.events[block] = eventsBytes(failedEvent(0, tc.error))
			node := newTestNode(t, c)

			derr, err := NewEventInspector(node).DispatchResult(context.Background(), block, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if derr == nil || derr.Module || derr.Error() != tc.want {
				t.Fatalf("got %+v, want %s", derr, tc.want)
			}
		})
	}
}

func TestEventInspectorMissingOutcome(t *testing.T) {
	c := newFakeChain(1)
	block := c.blocks[1].hash
	c.events[block] = eventsBytes(successEvent(0))
	node := newTestNode(t, c)

	if _, err := NewEventInspector(node).DispatchResult(context.Background(), block, 3); err == nil {
		t.Fatalf("expected error when no event matches the extrinsic")
	}
	if _, err := NewEventInspector(node).DispatchResult(context.Background(), common.Hash{0xaa}, 0); err == nil {
		t.Fatalf("expected error for a block without events")
	}
}

func TestSystemEventsKey(t *testing.T) {
	want := "0x26aa394eea5630e07c48ae0c9558cef780d41e5e16056765bc8461851072c9d7"
	if got := hexutil.Encode(SystemEvents.Prefix()); got != want {
		t.Fatalf("System.Events key = %s, want %s", got, want)
	}
}

func TestResolveCallUsesRuntimeIndex(t *testing.T) {
	node := newTestNode(t, newFakeChain(1))
	ctx := context.Background()

	call, _ := NewCalls(map[string][2]byte{}).AddStakeLimit([32]byte{}, 1, 1, 1, false)
	call.Index = [2]byte{9, 9}
	resolved, err := node.resolveCall(ctx, call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Index != [2]byte{testSubtensorIndex, 88} {
		t.Fatalf("index = %v", resolved.Index)
	}

	pinned, _ := NewCalls(map[string][2]byte{"SubtensorModule.add_stake": {9, 1}}).AddStake([32]byte{}, 1, 1)
	if resolved, _ := node.resolveCall(ctx, pinned); resolved.Index != [2]byte{9, 1} {
		t.Fatalf("pinned index replaced: %v", resolved.Index)
	}

	unknown, _ := NewCalls(nil).MoveStake([32]byte{}, [32]byte{}, 1, 2, 3)
	if resolved, _ := node.resolveCall(ctx, unknown); resolved.Index != DefaultCallIndexes["SubtensorModule.move_stake"] {
		t.Fatalf("call missing from metadata must keep its default index: %v", resolved.Index)
	}
}
