package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// The persisted representation is one tag line per active marker appended to
// the notes text: "[TAG]", optionally followed by "|KEY:value" pairs or a
// single "|{json}" payload. Free text outside tag lines is preserved
// byte-for-byte. Encode always strips every tag of the same family before
// appending, so stale markers cannot leak across transitions.

var customerTags = []string{
	string(WaitingForName),
	string(WaitingForDescription),
	string(WaitingForAddress),
	string(WaitingForAddressConfirmation),
	string(WaitingForPhotos),
	string(WaitingForAppointmentChoice),
	string(GeneralCorrespondence),
	string(WaitingForInquiryRelation),
}

var leadTags = []string{
	string(WaitingForOwnerAction),
	string(WaitingForQuoteSelection),
	string(AppointmentOptionsSet),
	string(SelectingDays),
	string(SelectingTimesMulti),
}

var quoteTags = []string{
	string(WaitingForEditChoice),
	string(WaitingForQuantityChange),
	string(WaitingForPriceChange),
	string(WaitingForQuantityItem),
	string(WaitingForPriceItem),
	string(WaitingForNewQuantity),
	string(WaitingForNewPrice),
}

// DecodeCustomer parses the active customer marker out of a notes field.
// A malformed tag decodes as idle alongside the parse error so the caller can
// log it and continue.
func DecodeCustomer(notes string) (CustomerState, error) {
	tag, rest, ok := findTag(notes, customerTags)
	if !ok {
		return CustomerState{}, nil
	}

	st := CustomerState{Kind: CustomerKind(tag)}
	fields, trailing := splitFields(rest)

	if id, ok := fields["LEAD"]; ok {
		leadID, err := uuid.Parse(id)
		if err != nil {
			return CustomerState{}, fmt.Errorf("state: bad lead id in %s tag: %w", tag, err)
		}
		st.LeadID = leadID
	}
	if count, ok := fields["COUNT"]; ok {
		n, err := strconv.Atoi(count)
		if err != nil {
			return CustomerState{}, fmt.Errorf("state: bad photo count in %s tag: %w", tag, err)
		}
		st.PhotoCount = n
	}
	if since, ok := fields["SINCE"]; ok {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return CustomerState{}, fmt.Errorf("state: bad timestamp in %s tag: %w", tag, err)
		}
		st.Since = ts
	}
	st.Message = trailing
	return st, nil
}

// EncodeCustomer strips any customer marker from notes and, unless the state
// is idle, appends the new one.
func EncodeCustomer(notes string, st CustomerState) string {
	notes = stripTags(notes, customerTags)
	if st.Idle() {
		return notes
	}

	var b strings.Builder
	b.WriteString("[" + string(st.Kind) + "]")
	if st.LeadID != uuid.Nil {
		b.WriteString("|LEAD:" + st.LeadID.String())
	}
	if st.Kind == WaitingForPhotos {
		b.WriteString("|COUNT:" + strconv.Itoa(st.PhotoCount))
	}
	if !st.Since.IsZero() {
		b.WriteString("|SINCE:" + st.Since.UTC().Format(time.RFC3339))
	}
	if st.Message != "" {
		b.WriteString("|MSG:" + sanitizeMessage(st.Message))
	}
	return appendTagLine(notes, b.String())
}

// DecodeLead parses the active owner sub-flow marker out of a lead notes field.
func DecodeLead(notes string) (LeadState, error) {
	tag, rest, ok := findTag(notes, leadTags)
	if !ok {
		return LeadState{}, nil
	}

	st := LeadState{Kind: LeadKind(tag)}
	payload := strings.TrimPrefix(rest, "|")
	switch st.Kind {
	case AppointmentOptionsSet:
		var opts AppointmentOptions
		if err := json.Unmarshal([]byte(payload), &opts); err != nil {
			return LeadState{}, fmt.Errorf("state: bad %s payload: %w", tag, err)
		}
		st.Options = &opts
	case SelectingDays, SelectingTimesMulti:
		var sess SchedulingSession
		if err := json.Unmarshal([]byte(payload), &sess); err != nil {
			return LeadState{}, fmt.Errorf("state: bad %s payload: %w", tag, err)
		}
		st.Session = &sess
	}
	return st, nil
}

// EncodeLead strips any owner sub-flow marker from notes and, unless the
// state is empty, appends the new one.
func EncodeLead(notes string, st LeadState) string {
	notes = stripTags(notes, leadTags)
	if st.None() {
		return notes
	}

	line := "[" + string(st.Kind) + "]"
	switch st.Kind {
	case AppointmentOptionsSet:
		if st.Options != nil {
			data, _ := json.Marshal(st.Options)
			line += "|" + string(data)
		}
	case SelectingDays, SelectingTimesMulti:
		if st.Session != nil {
			data, _ := json.Marshal(st.Session)
			line += "|" + string(data)
		}
	}
	return appendTagLine(notes, line)
}

// DecodeQuote parses the owner edit sub-flow marker out of a quote notes field.
func DecodeQuote(notes string) (QuoteState, error) {
	tag, rest, ok := findTag(notes, quoteTags)
	if !ok {
		return QuoteState{}, nil
	}

	st := QuoteState{Kind: QuoteKind(tag)}
	if st.Kind == WaitingForNewQuantity || st.Kind == WaitingForNewPrice {
		idx := strings.TrimPrefix(rest, ":")
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			return QuoteState{}, fmt.Errorf("state: bad item index in %s tag: %w", tag, err)
		}
		st.ItemIndex = n
	}
	return st, nil
}

// EncodeQuote strips any edit sub-flow marker from notes and, unless the
// state is empty, appends the new one.
func EncodeQuote(notes string, st QuoteState) string {
	notes = stripTags(notes, quoteTags)
	if st.None() {
		return notes
	}

	line := "[" + string(st.Kind) + "]"
	if st.Kind == WaitingForNewQuantity || st.Kind == WaitingForNewPrice {
		line += ":" + strconv.Itoa(st.ItemIndex)
	}
	return appendTagLine(notes, line)
}

// findTag locates the first line carrying one of the family's tags and
// returns the tag plus everything after the closing bracket. Longer tags are
// matched first so a tag that is a prefix of another cannot shadow it.
func findTag(notes string, tags []string) (tag, rest string, ok bool) {
	for _, line := range strings.Split(notes, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") {
			continue
		}
		best := ""
		for _, t := range tags {
			if strings.HasPrefix(line, "["+t+"]") && len(t) > len(best) {
				best = t
			}
		}
		if best != "" {
			return best, line[len(best)+2:], true
		}
	}
	return "", "", false
}

// stripTags removes every line of the family from notes, preserving all other
// text exactly.
func stripTags(notes string, tags []string) string {
	if notes == "" {
		return notes
	}
	lines := strings.Split(notes, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		matched := false
		for _, t := range tags {
			if strings.HasPrefix(trimmed, "["+t+"]") {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, line)
		}
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n")
}

// splitFields parses "|KEY:value" pairs. MSG is always the final field and
// swallows the remainder verbatim, so relayed text may contain '|' and ':'.
func splitFields(rest string) (map[string]string, string) {
	fields := make(map[string]string)
	rest = strings.TrimPrefix(rest, "|")
	if rest == "" {
		return fields, ""
	}
	parts := strings.Split(rest, "|")
	for i, part := range parts {
		key, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		if key == "MSG" {
			return fields, strings.Join(append([]string{val}, parts[i+1:]...), "|")
		}
		fields[key] = val
	}
	return fields, ""
}

func appendTagLine(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// sanitizeMessage keeps a relayed message on one line so it cannot break the
// line-oriented tag format.
func sanitizeMessage(msg string) string {
	return strings.ReplaceAll(strings.ReplaceAll(msg, "\r", " "), "\n", " ")
}
