package usi

import (
	"strconv"
	"strings"

	"github.com/seekerror/stdlib/pkg/lang"
)

// PVLine is one principal variation as reported by an engine's info line,
// keyed by PVIndex (1-based; engines that never send "multipv" are treated
// as reporting pv_index 1). SelDepth/Nodes/NPS/HashFull are Optional rather
// than plain zero-valued fields because an absent token and a reported zero
// are distinguishable on the wire and callers (the JSON envelope) need to
// tell them apart.
type PVLine struct {
	PVIndex    int
	ScoreType  string // "cp", "mate", or "unknown"
	ScoreValue int
	Depth      int
	SelDepth   lang.Optional[int]
	Nodes      lang.Optional[uint64]
	NPS        lang.Optional[uint64]
	HashFull   lang.Optional[int]
	PVUSI      []string
}

// parseInfoLine parses a USI "info ..." line. Unknown tokens are skipped,
// per the design: engines emit a superset of fields and extensions freely.
// A "string" token ends field parsing since the remainder is free text.
func parseInfoLine(line string) (PVLine, bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != "info" {
		return PVLine{}, false
	}
	tokens = tokens[1:]

	pv := PVLine{PVIndex: 1, ScoreType: "unknown"}
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "multipv":
			if i+1 < len(tokens) {
				pv.PVIndex = atoiOrZero(tokens[i+1])
				i++
			}
		case "depth":
			if i+1 < len(tokens) {
				pv.Depth = atoiOrZero(tokens[i+1])
				i++
			}
		case "seldepth":
			if i+1 < len(tokens) {
				pv.SelDepth = lang.Some(atoiOrZero(tokens[i+1]))
				i++
			}
		case "nodes":
			if i+1 < len(tokens) {
				pv.Nodes = lang.Some(uint64(atoiOrZero(tokens[i+1])))
				i++
			}
		case "nps":
			if i+1 < len(tokens) {
				pv.NPS = lang.Some(uint64(atoiOrZero(tokens[i+1])))
				i++
			}
		case "hashfull":
			if i+1 < len(tokens) {
				pv.HashFull = lang.Some(atoiOrZero(tokens[i+1]))
				i++
			}
		case "score":
			if i+2 < len(tokens) && (tokens[i+1] == "cp" || tokens[i+1] == "mate") {
				pv.ScoreType = tokens[i+1]
				pv.ScoreValue = atoiOrZero(tokens[i+2])
				i += 2
			}
		case "pv":
			pv.PVUSI = append([]string(nil), tokens[i+1:]...)
			i = len(tokens)
		case "string":
			i = len(tokens)
		default:
			// currmove, currmovenumber, tbhits, cpuload, refutation, currline,
			// and any future extension: not part of the PV snapshot contract.
		}
	}
	return pv, true
}

// mergePVLine folds an incoming partial update into the stored line for its
// pv_index: an update without "pv" updates counters but must not clear a
// previously reported line, per the design.
func mergePVLine(existing PVLine, had bool, incoming PVLine) PVLine {
	merged := incoming
	if len(incoming.PVUSI) == 0 && had {
		merged.PVUSI = existing.PVUSI
	}
	return merged
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseOptionDeclaration extracts the option name from an "option name <id>
// type ..." line declared during handshake. Names may contain spaces (e.g.
// "Clear Hash"), so everything between "name" and "type" is joined.
func parseOptionDeclaration(line string) (string, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 3 || tokens[0] != "option" || tokens[1] != "name" {
		return "", false
	}
	end := len(tokens)
	for i := 2; i < len(tokens); i++ {
		if tokens[i] == "type" {
			end = i
			break
		}
	}
	if end <= 2 {
		return "", false
	}
	return strings.Join(tokens[2:end], " "), true
}
