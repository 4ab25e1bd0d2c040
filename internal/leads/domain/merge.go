package domain

import "strings"

// LeadData is the normalized shape of an incoming lead from any source
// (manual form, CSV import, webhook adapter). MobileNo and AltMobileNo are
// expected to already be canonical; Email and AltEmail lower-cased.
type LeadData struct {
	MobileNo    string
	AltMobileNo string
	Email       string
	AltEmail    string
	Name        string
	Subject     string
	Message     string
	State       string
	District    string
	Station     string
	Pincode     string
	Source      string
	AgencyName  string
}

// FreeTextSeparator joins distinct free-text fragments accumulated across
// repeated submissions of the same lead.
const FreeTextSeparator = " & "

// MergeChanges lists, per column, the value a merge produced. Only fields
// that actually changed are present, so an empty map means the incoming
// record added nothing new.
type MergeChanges map[string]string

// MergeInto applies the duplicate-clubbing field rules to an existing lead:
// scalar identity/geo fields are first-write-wins (filled only when empty),
// free-text fields are append-only with FreeTextSeparator. The lead is
// mutated in place and the set of changed fields is returned.
//
// Assignment, serial number and status are never touched by a merge.
func MergeInto(lead *Lead, in LeadData) MergeChanges {
	changes := MergeChanges{}

	fill := func(column string, target *string, incoming string) {
		if *target == "" && incoming != "" {
			*target = incoming
			changes[column] = incoming
		}
	}

	fill("state", &lead.State, in.State)
	fill("source", &lead.Source, in.Source)
	fill("station", &lead.Station, in.Station)
	fill("district", &lead.District, in.District)
	fill("pincode", &lead.Pincode, in.Pincode)
	fill("agency_name", &lead.AgencyName, in.AgencyName)
	fill("alt_mobile_no", &lead.AltMobileNo, in.AltMobileNo)
	fill("alt_email", &lead.AltEmail, in.AltEmail)

	appendText := func(column string, target *string, incoming string) {
		if incoming == "" {
			return
		}
		if *target == "" {
			*target = incoming
			changes[column] = incoming
			return
		}
		if *target == incoming || containsFragment(*target, incoming) {
			return
		}
		*target += FreeTextSeparator + incoming
		changes[column] = *target
	}

	appendText("subject", &lead.Subject, in.Subject)
	appendText("message", &lead.Message, in.Message)

	return changes
}

// containsFragment reports whether text already contains incoming as one of
// its separator-joined fragments, so re-posting identical content is a no-op.
func containsFragment(text, incoming string) bool {
	for _, fragment := range strings.Split(text, FreeTextSeparator) {
		if fragment == incoming {
			return true
		}
	}
	return false
}
