package cdtoc

import (
	"crypto/sha1" //nolint:gosec // disc ids are defined over SHA-1
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// SectorsPerSecond is the CD-DA frame rate used to convert offsets to time.
	SectorsPerSecond = 75
	// MaxTracks is the largest track number a CD table of contents may describe.
	MaxTracks = 99
	// DiscIDLength is the length of an encoded disc id.
	DiscIDLength = 28
)

// ErrInvalidTocFormat indicates that a raw TOC string does not describe a well-formed disc.
var ErrInvalidTocFormat = errors.New("cdtoc: invalid toc format")

var discIDEncoding = strings.NewReplacer("+", ".", "/", "_", "=", "-")

// CDTOC is an immutable table of contents parsed from a raw TOC string.
type CDTOC struct {
	firstTrack    int
	lastTrack     int
	leadoutOffset int
	trackOffsets  []int
	discID        string
	freeDBID      string
}

// TrackDetail describes the span of a single track on the disc.
type TrackDetail struct {
	Number      int
	StartSector int
	EndSector   int
	LengthMs    int64
}

// Parse validates a raw "first last leadout offset..." TOC string and returns the CDTOC it describes.
func Parse(rawInput string) (CDTOC, error) {
	fields := strings.Fields(rawInput)
	if len(fields) < 4 {
		return CDTOC{}, fmt.Errorf("%w: expected at least 4 fields, got %d", ErrInvalidTocFormat, len(fields))
	}
	values := make([]int, len(fields))
	for index, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil || value < 0 || strings.HasPrefix(field, "+") {
			return CDTOC{}, fmt.Errorf("%w: field %d is not a non-negative integer", ErrInvalidTocFormat, index+1)
		}
		values[index] = value
	}
	return New(values[0], values[1], values[2], values[3:])
}

// New validates explicit TOC components and computes the disc identifiers.
func New(firstTrack, lastTrack, leadoutOffset int, trackOffsets []int) (CDTOC, error) {
	if firstTrack != 1 {
		return CDTOC{}, fmt.Errorf("%w: first track must be 1", ErrInvalidTocFormat)
	}
	if lastTrack < 1 || lastTrack > MaxTracks {
		return CDTOC{}, fmt.Errorf("%w: last track %d out of range", ErrInvalidTocFormat, lastTrack)
	}
	if len(trackOffsets) != lastTrack {
		return CDTOC{}, fmt.Errorf("%w: expected %d offsets, got %d", ErrInvalidTocFormat, lastTrack, len(trackOffsets))
	}
	for index := 1; index < len(trackOffsets); index++ {
		if trackOffsets[index] <= trackOffsets[index-1] {
			return CDTOC{}, fmt.Errorf("%w: offset of track %d does not increase", ErrInvalidTocFormat, index+1)
		}
	}
	if trackOffsets[0] < 0 {
		return CDTOC{}, fmt.Errorf("%w: negative offset", ErrInvalidTocFormat)
	}
	if leadoutOffset <= trackOffsets[len(trackOffsets)-1] {
		return CDTOC{}, fmt.Errorf("%w: leadout must follow the final track", ErrInvalidTocFormat)
	}

	toc := CDTOC{
		firstTrack:    firstTrack,
		lastTrack:     lastTrack,
		leadoutOffset: leadoutOffset,
		trackOffsets:  append([]int(nil), trackOffsets...),
	}
	toc.discID = computeDiscID(toc)
	toc.freeDBID = computeFreeDBID(toc)
	return toc, nil
}

func computeDiscID(toc CDTOC) string {
	var message strings.Builder
	fmt.Fprintf(&message, "%02X", toc.firstTrack)
	fmt.Fprintf(&message, "%02X", toc.lastTrack)
	fmt.Fprintf(&message, "%08X", toc.leadoutOffset)
	for track := 1; track <= MaxTracks; track++ {
		offset := 0
		if track <= len(toc.trackOffsets) {
			offset = toc.trackOffsets[track-1]
		}
		fmt.Fprintf(&message, "%08X", offset)
	}
	digest := sha1.Sum([]byte(message.String())) //nolint:gosec
	return discIDEncoding.Replace(base64.StdEncoding.EncodeToString(digest[:]))
}

func computeFreeDBID(toc CDTOC) string {
	checksum := 0
	for _, offset := range toc.trackOffsets {
		for seconds := offset / SectorsPerSecond; seconds > 0; seconds /= 10 {
			checksum += seconds % 10
		}
	}
	playing := toc.leadoutOffset/SectorsPerSecond - toc.trackOffsets[0]/SectorsPerSecond
	return fmt.Sprintf("%08x", (checksum%0xff)<<24|playing<<8|toc.TrackCount())
}

// DiscID returns the content-derived disc identifier.
func (t CDTOC) DiscID() string {
	return t.discID
}

// FreeDBID returns the legacy CDDB identifier.
func (t CDTOC) FreeDBID() string {
	return t.freeDBID
}

func (t CDTOC) FirstTrack() int {
	return t.firstTrack
}

func (t CDTOC) LastTrack() int {
	return t.lastTrack
}

func (t CDTOC) LeadoutOffset() int {
	return t.leadoutOffset
}

// TrackOffsets returns a copy of the per-track start sectors.
func (t CDTOC) TrackOffsets() []int {
	return append([]int(nil), t.trackOffsets...)
}

// TrackCount returns the number of tracks on the disc.
func (t CDTOC) TrackCount() int {
	return t.lastTrack - t.firstTrack + 1
}

// LengthMs returns the total playing length of the disc in milliseconds.
func (t CDTOC) LengthMs() int64 {
	return sectorsToMs(t.leadoutOffset)
}

// TrackDetails returns the span of every track, the last one ending at the leadout.
func (t CDTOC) TrackDetails() []TrackDetail {
	details := make([]TrackDetail, 0, len(t.trackOffsets))
	for index, start := range t.trackOffsets {
		end := t.leadoutOffset
		if index+1 < len(t.trackOffsets) {
			end = t.trackOffsets[index+1]
		}
		details = append(details, TrackDetail{
			Number:      t.firstTrack + index,
			StartSector: start,
			EndSector:   end,
			LengthMs:    sectorsToMs(end - start),
		})
	}
	return details
}

// String returns the canonical TOC serialization accepted by Parse.
func (t CDTOC) String() string {
	parts := make([]string, 0, len(t.trackOffsets)+3)
	parts = append(parts,
		strconv.Itoa(t.firstTrack),
		strconv.Itoa(t.lastTrack),
		strconv.Itoa(t.leadoutOffset),
	)
	for _, offset := range t.trackOffsets {
		parts = append(parts, strconv.Itoa(offset))
	}
	return strings.Join(parts, " ")
}

// Equal reports whether both values describe the same table of contents.
func (t CDTOC) Equal(other CDTOC) bool {
	if t.firstTrack != other.firstTrack || t.lastTrack != other.lastTrack || t.leadoutOffset != other.leadoutOffset {
		return false
	}
	if len(t.trackOffsets) != len(other.trackOffsets) {
		return false
	}
	for index := range t.trackOffsets {
		if t.trackOffsets[index] != other.trackOffsets[index] {
			return false
		}
	}
	return t.discID == other.discID
}

// IsValidDiscID reports whether value has the shape of an encoded disc id.
func IsValidDiscID(value string) bool {
	if len(value) != DiscIDLength || !strings.HasSuffix(value, "-") {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func sectorsToMs(sectors int) int64 {
	return int64(sectors) * 1000 / SectorsPerSecond
}
