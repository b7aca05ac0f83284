// Package hwconfig loads the hardware acceptance-filter profile applied to
// a transceiver at startup: which node id this host claims, the bitrates
// the TCAN455x link runs at, and the XID filter banks that decide which
// frames even reach software. It is loaded from an INI file, the same file
// format gocanopen uses for its EDS-adjacent configuration — here it
// carries a transceiver's filter banks instead of an Object Dictionary.
package hwconfig

import (
	"fmt"
	"strconv"

	"github.com/digitalservo/cands-go/pkg/transceiver"
	"gopkg.in/ini.v1"
)

// Profile is the parsed form of a hardware filter-bank INI file.
//
// Expected layout:
//
//	[node]
//	id = 1
//	bitrate_kbps = 500
//	data_bitrate_kbps = 2000
//
//	[filter.status]
//	id = 0x87
//	mask = 0x1FFFFFFF
//
//	[filter.responses]
//	id = 0x80
//	mask = 0x1FFF0000
type Profile struct {
	NodeID          uint8
	BitrateKbps     int
	DataBitrateKbps int
	Banks           []transceiver.FilterBank
}

// Load reads and parses a hardware filter profile from path.
func Load(path string) (Profile, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return Profile{}, fmt.Errorf("hwconfig: loading %s: %w", path, err)
	}
	return parse(cfg)
}

func parse(cfg *ini.File) (Profile, error) {
	var p Profile

	node := cfg.Section("node")
	nodeID, err := node.Key("id").Int()
	if err != nil {
		return Profile{}, fmt.Errorf("hwconfig: [node] id: %w", err)
	}
	if nodeID < 0 || nodeID > 127 {
		return Profile{}, fmt.Errorf("hwconfig: [node] id %d out of range", nodeID)
	}
	p.NodeID = uint8(nodeID)

	p.BitrateKbps, err = node.Key("bitrate_kbps").Int()
	if err != nil {
		return Profile{}, fmt.Errorf("hwconfig: [node] bitrate_kbps: %w", err)
	}
	p.DataBitrateKbps, err = node.Key("data_bitrate_kbps").Int()
	if err != nil {
		return Profile{}, fmt.Errorf("hwconfig: [node] data_bitrate_kbps: %w", err)
	}

	for _, section := range cfg.Sections() {
		if !isFilterSection(section.Name()) {
			continue
		}
		id, err := strconv.ParseUint(section.Key("id").String(), 0, 32)
		if err != nil {
			return Profile{}, fmt.Errorf("hwconfig: %s id: %w", section.Name(), err)
		}
		mask, err := strconv.ParseUint(section.Key("mask").String(), 0, 32)
		if err != nil {
			return Profile{}, fmt.Errorf("hwconfig: %s mask: %w", section.Name(), err)
		}
		p.Banks = append(p.Banks, transceiver.FilterBank{ID: uint32(id), Mask: uint32(mask)})
	}

	return p, nil
}

func isFilterSection(name string) bool {
	return len(name) > 7 && name[:7] == "filter."
}

// ToFilterConfig converts a Profile into the FilterConfig a Transceiver's
// SetFilter expects.
func (p Profile) ToFilterConfig() transceiver.FilterConfig {
	return transceiver.FilterConfig{
		NodeID:      p.NodeID,
		BitrateKbps: p.BitrateKbps,
		DataBitrate: p.DataBitrateKbps,
		Banks:       p.Banks,
	}
}
