package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common"

	"taostats/internal/scale"
)

const (
	eventExtrinsicSuccess = "System.ExtrinsicSuccess"
	eventExtrinsicFailed  = "System.ExtrinsicFailed"
)

// SystemEvents is the plain storage value holding the events of a block.
var SystemEvents = StorageItem{Module: "System", Name: "Events"}

// EventInspector is the default DispatchInspector. It decodes System.Events
// at the inclusion block with that block's runtime metadata and reports the
// outcome recorded for the extrinsic's ApplyExtrinsic phase.
type EventInspector struct {
	node *Node
}

// NewEventInspector returns an inspector reading events through node.
func NewEventInspector(node *Node) *EventInspector {
	return &EventInspector{node: node}
}

func (i *EventInspector) DispatchResult(ctx context.Context, blockHash common.Hash, extrinsicIndex int) (*DispatchError, error) {
	rt, err := i.node.runtime(ctx, &blockHash)
	if err != nil {
		return nil, err
	}
	raw, ok, err := i.node.Storage(ctx, SystemEvents.Prefix(), &blockHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no events stored at block %s", blockHash.Hex())
	}
	events, err := decodeEvents(rt.events, raw)
	if err != nil {
		return nil, fmt.Errorf("decode events at %s: %w", blockHash.Hex(), err)
	}

	for _, ev := range events {
		if !ev.Phase.IsApplyExtrinsic || int(ev.Phase.AsApplyExtrinsic) != extrinsicIndex {
			continue
		}
		switch ev.Name {
		case eventExtrinsicSuccess:
			return nil, nil
		case eventExtrinsicFailed:
			return rt.dispatchError(ev.Fields), nil
		}
	}
	return nil, fmt.Errorf("no dispatch event for extrinsic %d at block %s", extrinsicIndex, blockHash.Hex())
}

// eventRecord is one decoded frame_system::EventRecord.
type eventRecord struct {
	Name   string
	Phase  types.Phase
	Fields registry.DecodedFields
}

// decodeEvents reads Vec<EventRecord>. Every event must be known to reg, the
// field layout of an unknown event cannot be skipped.
func decodeEvents(reg registry.EventRegistry, raw []byte) ([]eventRecord, error) {
	d := scale.NewDecoder(raw).Codec()
	n, err := d.DecodeUintCompact()
	if err != nil {
		return nil, fmt.Errorf("event count: %w", err)
	}
	count := n.Uint64()

	out := make([]eventRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		var rec eventRecord
		if err := d.Decode(&rec.Phase); err != nil {
			return nil, fmt.Errorf("event %d phase: %w", i, err)
		}
		var id types.EventID
		if err := d.Decode(&id); err != nil {
			return nil, fmt.Errorf("event %d id: %w", i, err)
		}
		dec, ok := reg[id]
		if !ok {
			return nil, fmt.Errorf("event %d: unknown event id %v", i, id)
		}
		rec.Name = dec.Name
		if rec.Fields, err = dec.Decode(d); err != nil {
			return nil, fmt.Errorf("event %d %s: %w", i, dec.Name, err)
		}
		var topics []types.Hash
		if err := d.Decode(&topics); err != nil {
			return nil, fmt.Errorf("event %d topics: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// runtimeMetadata is the decoded metadata of one runtime version.
type runtimeMetadata struct {
	specVersion uint32
	meta        *types.Metadata
	events      registry.EventRegistry
}

func newRuntimeMetadata(specVersion uint32, meta *types.Metadata) (*runtimeMetadata, error) {
	events, err := registry.NewFactory().CreateEventRegistry(meta)
	if err != nil {
		return nil, fmt.Errorf("build event registry: %w", err)
	}
	return &runtimeMetadata{specVersion: specVersion, meta: meta, events: events}, nil
}

func (rt *runtimeMetadata) palletName(index uint8) string {
	for _, p := range rt.meta.AsMetadataV14.Pallets {
		if uint8(p.Index) == index {
			return string(p.Name)
		}
	}
	return fmt.Sprintf("pallet(%d)", index)
}

// callIndex resolves "Module.call" against the metadata.
func (rt *runtimeMetadata) callIndex(name string) ([2]byte, bool) {
	idx, err := rt.meta.FindCallIndex(name)
	if err != nil {
		return [2]byte{}, false
	}
	return [2]byte{idx.SectionIndex, idx.MethodIndex}, true
}

// dispatchError turns the fields of System.ExtrinsicFailed into a DispatchError.
func (rt *runtimeMetadata) dispatchError(fields registry.DecodedFields) *DispatchError {
	var field *registry.DecodedField
	for _, f := range fields {
		if fieldLeaf(f.Name) == "dispatch_error" {
			field = f
			break
		}
	}
	if field == nil && len(fields) > 0 {
		field = fields[0]
	}
	if field == nil {
		return &DispatchError{Raw: "unknown dispatch error"}
	}

	if pallet, code, ok := moduleError(field.Value); ok {
		out := &DispatchError{Module: true, Section: rt.palletName(pallet)}
		me, err := rt.meta.FindError(types.U8(pallet), [4]types.U8{types.U8(code)})
		if err != nil {
			out.Name = fmt.Sprintf("error(%d)", code)
			return out
		}
		out.Name = me.Name
		if me.Value != "" {
			out.Docs = []string{me.Value}
		}
		return out
	}
	return &DispatchError{Raw: rt.variantName(field.LookupIndex, field.Value)}
}

// variantName renders a decoded enum value such as Token(FundsUnavailable).
func (rt *runtimeMetadata) variantName(lookup int64, value interface{}) string {
	typ, ok := rt.meta.AsMetadataV14.EfficientLookup[lookup]
	if !ok || !typ.Def.IsVariant {
		return fmt.Sprintf("%v", value)
	}
	variants := typ.Def.Variant.Variants

	if b, ok := asByte(value); ok {
		for _, v := range variants {
			if uint8(v.Index) == b {
				return string(v.Name)
			}
		}
		return fmt.Sprintf("variant(%d)", b)
	}

	inner, ok := value.(registry.DecodedFields)
	if !ok || len(inner) == 0 {
		return fmt.Sprintf("%v", value)
	}
	for _, v := range variants {
		if len(v.Fields) == 1 && v.Fields[0].Type.Int64() == inner[0].LookupIndex {
			return fmt.Sprintf("%s(%s)", v.Name, rt.variantName(inner[0].LookupIndex, inner[0].Value))
		}
	}
	return fmt.Sprintf("%v", value)
}

// moduleError finds the ModuleError { index, error } pair inside a decoded
// DispatchError. Older runtimes encode error as a single u8.
func moduleError(value interface{}) (pallet, code uint8, ok bool) {
	fields, isFields := value.(registry.DecodedFields)
	if !isFields {
		return 0, 0, false
	}
	var haveIndex, haveError bool
	for _, f := range fields {
		switch fieldLeaf(f.Name) {
		case "index":
			pallet, haveIndex = asByte(f.Value)
		case "error":
			code, haveError = asByte(f.Value)
			if !haveError {
				if items, isSlice := f.Value.([]interface{}); isSlice && len(items) > 0 {
					code, haveError = asByte(items[0])
				}
			}
		}
	}
	if haveIndex && haveError {
		return pallet, code, true
	}
	for _, f := range fields {
		if p, c, found := moduleError(f.Value); found {
			return p, c, true
		}
	}
	return 0, 0, false
}

// fieldLeaf strips the type path the registry prefixes to field names.
func fieldLeaf(name string) string {
	return name[strings.LastIndex(name, ".")+1:]
}

func asByte(v interface{}) (uint8, bool) {
	switch b := v.(type) {
	case types.U8:
		return uint8(b), true
	case uint8:
		return b, true
	default:
		return 0, false
	}
}
