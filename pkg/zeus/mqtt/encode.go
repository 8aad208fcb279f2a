package mqtt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/protobuf/jsonpb"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/zeus.go/pkg/zeus/device"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

func stringValue(v string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v}}
}

func boolValue(v bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: v}}
}

func structValue(s *structpb.Struct) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: s}}
}

// StatsStruct converts a statistics snapshot. Durations are in seconds.
func StatsStruct(st device.Stats, statline string) *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"device_name":       stringValue(st.DeviceName),
		"state":             stringValue(st.State),
		"open":              boolValue(st.Open),
		"khs_core":          numberValue(st.KHSCore),
		"khs_chip":          numberValue(st.KHSChip),
		"khs_board":         numberValue(st.KHSBoard),
		"frequency":         numberValue(float64(st.Frequency)),
		"cores_per_chip":    numberValue(float64(st.CoresPerChip)),
		"chips_count":       numberValue(float64(st.ChipCount)),
		"current_work_time": numberValue(st.CurrentWorkTime.Seconds()),
		"work_timeout":      numberValue(st.WorkTimeout.Seconds()),
		"work_done":         numberValue(float64(st.WorkDone)),
		"timeouts":          numberValue(float64(st.Timeouts)),
		"statline":          stringValue(statline),
	}}
	if dbg := st.Debug; dbg != nil {
		s.Fields["debug"] = structValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"chips_count_max":       numberValue(float64(dbg.ChipCountMax)),
			"chips_bit_num":         numberValue(float64(dbg.ChipBitCount)),
			"read_count":            numberValue(float64(dbg.ReadCount)),
			"freqcode":              numberValue(float64(dbg.FreqCode)),
			"measured":              boolValue(dbg.Measured),
			"golden_speed_per_core": numberValue(float64(dbg.GoldenSpeed)),
		}})
	}
	return s
}

func countsValue(counts [wire.CoresPerChip]uint32) *structpb.Value {
	values := make([]*structpb.Value, len(counts))
	for i, n := range counts {
		values[i] = numberValue(float64(n))
	}
	return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: &structpb.ListValue{Values: values}}}
}

// ChipsStruct lists the per-core nonce and error counters of each chip
// of drv.
func ChipsStruct(drv device.Driver) *structpb.Struct {
	count := drv.Stats().ChipCount
	chips := make([]*structpb.Value, 0, count)
	for chip := 0; chip < count; chip++ {
		nonces, errs := drv.ChipCounters(chip)
		chips = append(chips, structValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"chip":   numberValue(float64(chip)),
			"nonces": countsValue(nonces),
			"errors": countsValue(errs),
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":  stringValue(drv.Name()),
		"chips": {Kind: &structpb.Value_ListValue{ListValue: &structpb.ListValue{Values: chips}}},
	}}
}

// ReplyStruct converts the outcome of a set command.
func ReplyStruct(option, reply string, err error) *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"option": stringValue(option),
		"ok":     boolValue(err == nil),
	}}
	if reply != "" {
		s.Fields["reply"] = stringValue(reply)
	}
	if err != nil {
		s.Fields["error"] = stringValue(err.Error())
	}
	return s
}

var marshaler = jsonpb.Marshaler{}

// Encode renders s as JSON.
func Encode(s *structpb.Struct) ([]byte, error) {
	str, err := marshaler.MarshalToString(s)
	if err != nil {
		return nil, err
	}
	return []byte(str), nil
}

// Decode parses a JSON object.
func Decode(payload []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := jsonpb.UnmarshalString(string(payload), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseSet parses a set command payload "option=setting" or "option".
func ParseSet(payload []byte) (option, setting string) {
	cmd := strings.TrimSpace(string(payload))
	if pos := strings.IndexByte(cmd, '='); pos >= 0 {
		return strings.TrimSpace(cmd[:pos]), strings.TrimSpace(cmd[pos+1:])
	}
	return cmd, ""
}

// Format renders s as sorted "key: value" lines.
func Format(s *structpb.Struct) string {
	keys := make([]string, 0, len(s.GetFields()))
	for key := range s.GetFields() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", key, formatValue(s.Fields[key]))
	}
	return sb.String()
}

func formatValue(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return fmt.Sprintf("%g", k.NumberValue)
	case *structpb.Value_BoolValue:
		return fmt.Sprintf("%v", k.BoolValue)
	case *structpb.Value_StructValue:
		return "{" + strings.ReplaceAll(strings.TrimSpace(Format(k.StructValue)), "\n", ", ") + "}"
	case *structpb.Value_ListValue:
		items := make([]string, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			items = append(items, formatValue(item))
		}
		return "[" + strings.Join(items, " ") + "]"
	case *structpb.Value_NullValue:
		return "null"
	}
	return ""
}
