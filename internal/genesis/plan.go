package genesis

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// request is one Modbus read covering count registers from start.
type request struct {
	table Table
	start uint16
	count uint16
	regs  []Register
}

// planRequests groups registers into reads. Registers of the same table
// whose addresses are contiguous share a read, up to maxSpan per request.
func planRequests(regs []Register, maxSpan int) []request {
	if maxSpan < 1 {
		maxSpan = 1
	}

	sorted := make([]Register, len(regs))
	copy(sorted, regs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Table != sorted[j].Table {
			return sorted[i].Table < sorted[j].Table
		}
		return sorted[i].Address < sorted[j].Address
	})

	var out []request
	for _, r := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.table == r.Table &&
				r.Address == last.start+last.count &&
				int(last.count) < maxSpan {
				last.count++
				last.regs = append(last.regs, r)
				continue
			}
		}
		out = append(out, request{table: r.Table, start: r.Address, count: 1, regs: []Register{r}})
	}
	return out
}

// decodeInto decodes a read response and stores each register's value.
func decodeInto(out map[string]any, req request, data []byte) error {
	for _, r := range req.regs {
		offset := int(r.Address - req.start)

		if req.table.Boolean() {
			byteIdx := offset / 8
			if byteIdx >= len(data) {
				return fmt.Errorf("short %s response: %d bytes for %d bits", req.table, len(data), req.count)
			}
			out[r.Name] = data[byteIdx]>>(uint(offset)%8)&1 == 1
			continue
		}

		if 2*offset+2 > len(data) {
			return fmt.Errorf("short %s response: %d bytes for %d registers", req.table, len(data), req.count)
		}
		out[r.Name] = decodeWord(r, binary.BigEndian.Uint16(data[2*offset:]))
	}
	return nil
}

// decodeWord applies sign and scale to a raw register word.
func decodeWord(r Register, raw uint16) any {
	var v float64
	if r.Unsigned {
		v = float64(raw)
	} else {
		v = float64(int16(raw))
	}
	if r.Scale == 1 || r.Scale == 0 {
		return int(v)
	}
	return v / r.Scale
}
