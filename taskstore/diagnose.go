package taskstore

import (
	"encoding/hex"
	"fmt"

	"github.com/forestrie/go-taskstore/tasks"
	"github.com/fxamacker/cbor/v2"
)

const (
	maxDiagnosticChars = 512
	maxDiagnosticBytes = 64
)

// decodeItems decodes the stored items of a task. If the normal decode fails
// the items are decoded one at a time: an item that can not be decoded is
// dropped if its kind is optional, otherwise the error identifies the item and
// includes its CBOR diagnostic notation.
func (s *Store) decodeItems(id tasks.TaskID, data []byte) ([]tasks.CachedDataItem, error) {
	var items []tasks.CachedDataItem
	err := s.codec.UnmarshalInto(data, &items)
	if err == nil {
		return items, nil
	}
	s.log.Infof("unable to decode data items of %s, decoding item by item: %v", id, err)
	return s.decodeItemsEach(id, data)
}

func (s *Store) decodeItemsEach(id tasks.TaskID, data []byte) ([]tasks.CachedDataItem, error) {
	var raws []cbor.RawMessage
	if err := cbor.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrDecodeItems, id, err, diagnose(data))
	}

	items := make([]tasks.CachedDataItem, 0, len(raws))
	for i, raw := range raws {
		var item tasks.CachedDataItem
		err := s.codec.UnmarshalInto(raw, &item)
		if err == nil {
			items = append(items, item)
			continue
		}

		kind, kindErr := probeKind(raw)
		if kindErr == nil && kind.IsOptional() {
			s.log.Infof("dropping undecodable optional item %d (%s) of %s: %v: %s", i, kind, id, err, diagnose(raw))
			continue
		}
		if kindErr != nil {
			return nil, fmt.Errorf("%w: %s: item %d (kind unknown: %v): %w: %s",
				ErrDecodeItems, id, i, kindErr, err, diagnose(raw))
		}
		return nil, fmt.Errorf("%w: %s: item %d (%s): %w: %s", ErrDecodeItems, id, i, kind, err, diagnose(raw))
	}
	return items, nil
}

// probeKind decodes only the kind of an item's key. It is used to decide if an
// item that failed to decode may be dropped. Unknown kinds are rejected by
// the ItemKind decoder.
func probeKind(raw []byte) (tasks.ItemKind, error) {
	var probe struct {
		Key struct {
			Kind tasks.ItemKind `cbor:"1,keyasint"`
		} `cbor:"1,keyasint"`
	}
	if err := cbor.Unmarshal(raw, &probe); err != nil {
		return 0, err
	}
	return probe.Key.Kind, nil
}

// diagnose renders data in CBOR diagnostic notation for log and error
// messages, falling back to a hex prefix if data is not well formed.
func diagnose(data []byte) string {
	notation, err := cbor.Diagnose(data)
	if err != nil {
		n := min(len(data), maxDiagnosticBytes)
		return fmt.Sprintf("malformed cbor (%v) %s", err, hex.EncodeToString(data[:n]))
	}
	if len(notation) > maxDiagnosticChars {
		return notation[:maxDiagnosticChars] + "..."
	}
	return notation
}
