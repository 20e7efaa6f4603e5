package auth

import "fmt"

// Resolve computes the credentials for one connection attempt.
//
// Layers, lowest precedence first: defaults, the resolver's override, then
// the override embedded in the URL. A nil resolver contributes nothing.
// The result is validated as a whole.
func Resolve(r Resolver, defaults Credentials, server, share string, embedded Override) (Credentials, error) {
	var o Override
	if r != nil {
		got, err := r.Resolve(server, share)
		if err != nil {
			return defaults, fmt.Errorf("resolve credentials for %s: %w", Key{Server: server, Share: share}, err)
		}
		o = got
	}

	creds, err := o.Merge(embedded).Apply(defaults)
	if err != nil {
		return defaults, err
	}
	if err := creds.Validate(); err != nil {
		return defaults, err
	}
	return creds, nil
}
