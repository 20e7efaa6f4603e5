// Package auth resolves the (workgroup, username, password) triple used to
// authenticate against a given server and share.
//
// A resolver never sees or returns a complete triple by itself: it returns an
// Override whose absent fields keep the caller's defaults. Resolution is
// therefore always a merge, never a replacement.
package auth

import (
	"fmt"
	"strings"

	"github.com/marmos91/smbc/pkg/smberr"
)

// MaxFieldLength is the largest accepted credential field in bytes.
// The underlying client stores each field in a 256-byte NUL-terminated buffer.
const MaxFieldLength = 255

// Field names a member of the credential triple.
type Field string

const (
	FieldWorkgroup Field = "workgroup"
	FieldUsername  Field = "username"
	FieldPassword  Field = "password"
)

// Credentials is a fully populated credential triple.
type Credentials struct {
	Workgroup string
	Username  string
	Password  string
}

// IsAnonymous reports whether no username is set.
func (c Credentials) IsAnonymous() bool {
	return c.Username == ""
}

// String never includes the password.
func (c Credentials) String() string {
	if c.Workgroup == "" {
		return c.Username
	}
	return c.Workgroup + `\` + c.Username
}

// Validate checks every field of c.
func (c Credentials) Validate() error {
	if err := Validate(FieldWorkgroup, c.Workgroup); err != nil {
		return err
	}
	if err := Validate(FieldUsername, c.Username); err != nil {
		return err
	}
	return Validate(FieldPassword, c.Password)
}

// Override is a partial credential triple. A nil field leaves the
// corresponding default untouched.
type Override struct {
	Workgroup *string `json:"workgroup,omitempty" yaml:"workgroup,omitempty"`
	Username  *string `json:"username,omitempty" yaml:"username,omitempty"`
	Password  *string `json:"password,omitempty" yaml:"password,omitempty"`
}

// String returns a pointer to s, for building Override literals.
func String(s string) *string {
	return &s
}

// Full returns an Override that sets all three fields.
func Full(workgroup, username, password string) Override {
	return Override{Workgroup: &workgroup, Username: &username, Password: &password}
}

// IsEmpty reports whether o overrides nothing.
func (o Override) IsEmpty() bool {
	return o.Workgroup == nil && o.Username == nil && o.Password == nil
}

// Validate checks every present field of o.
func (o Override) Validate() error {
	for _, f := range []struct {
		name  Field
		value *string
	}{
		{FieldWorkgroup, o.Workgroup},
		{FieldUsername, o.Username},
		{FieldPassword, o.Password},
	} {
		if f.value == nil {
			continue
		}
		if err := Validate(f.name, *f.value); err != nil {
			return err
		}
	}
	return nil
}

// Merge layers top over o: fields present in top win.
func (o Override) Merge(top Override) Override {
	if top.Workgroup != nil {
		o.Workgroup = top.Workgroup
	}
	if top.Username != nil {
		o.Username = top.Username
	}
	if top.Password != nil {
		o.Password = top.Password
	}
	return o
}

// Apply validates o and writes its present fields over base.
// Nothing is merged when validation fails.
func (o Override) Apply(base Credentials) (Credentials, error) {
	if err := o.Validate(); err != nil {
		return base, err
	}
	if o.Workgroup != nil {
		base.Workgroup = *o.Workgroup
	}
	if o.Username != nil {
		base.Username = *o.Username
	}
	if o.Password != nil {
		base.Password = *o.Password
	}
	return base, nil
}

// ValidationError describes a rejected credential field.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap makes every ValidationError match smberr.ErrValidation.
func (e *ValidationError) Unwrap() error {
	return smberr.ErrValidation
}

// Validate rejects values containing a NUL byte or longer than MaxFieldLength
// bytes. Values are never truncated.
func Validate(field Field, value string) error {
	if i := strings.IndexByte(value, 0); i >= 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("contains NUL byte at offset %d", i)}
	}
	if len(value) > MaxFieldLength {
		return &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("%d bytes exceeds limit of %d", len(value), MaxFieldLength),
		}
	}
	return nil
}
