package smb2

import (
	"errors"

	gosmb2 "github.com/hirochachacha/go-smb2"
	"github.com/marmos91/smbc/internal/smbstatus"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/smberr"
)

// mapErr converts a go-smb2 or network error into an *smberr.Error.
// NT status codes reported by the server take priority over the generic
// io/fs classification.
func mapErr(op, where string, err error) error {
	if err == nil {
		return nil
	}
	var se *smberr.Error
	if errors.As(err, &se) || smberr.IsValidation(err) {
		return err
	}

	var re *gosmb2.ResponseError
	if errors.As(err, &re) {
		st := smbstatus.Status(re.Code)
		if code := st.Errno(); code != 0 {
			return &smberr.Error{Op: op, Path: where, Code: code, Message: st.String(), Err: err}
		}
	}
	return smberr.Wrap(op, where, invoker.ErrnoOf(err), err)
}
