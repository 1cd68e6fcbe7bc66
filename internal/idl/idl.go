// Package idl registers the wire classes the client consumes. The full
// Evergreen IDL describes hundreds of classes; this is the subset the
// catalog operations touch, with fields in the server's positional order.
package idl

import "hemlock/internal/wire"

var classes = map[string][]string{
	// patron user
	"au": {"id", "usrname", "email", "first_given_name", "second_given_name",
		"family_name", "day_phone", "home_ou", "expire_date", "profile"},
	// circulation
	"circ": {"id", "usr", "target_copy", "xact_start", "due_date",
		"checkin_time", "renewal_remaining", "auto_renewal", "circ_lib"},
	// hold request
	"ahr": {"id", "usr", "target", "hold_type", "pickup_lib", "expire_time",
		"shelf_expire_time", "frozen", "thaw_date", "transit", "email_notify",
		"phone_notify"},
	// metarecord virtual record (bib summary)
	"mvr": {"doc_id", "title", "author", "pubdate", "publisher", "isbn",
		"synopsis", "physical_description", "online_loc", "types_of_resource"},
	// billable transaction summary (history rows)
	"mbts": {"id", "usr", "xact_start", "xact_finish", "total_owed",
		"balance_owed"},
	// patron message
	"aum": {"id", "usr", "title", "message", "create_date", "deleted",
		"read_date"},
}

// Register loads the class field lists into the registry. Call it once
// from the composition root before any payload is decoded.
func Register(reg *wire.Registry) {
	for class, fields := range classes {
		reg.Register(class, fields)
	}
}

// Fields exposes a class field list, used by the gateway simulator to
// emit positional objects that match what the decoder expects.
func Fields(class string) []string {
	return classes[class]
}
