package cookies

import "context"

// Provisioner obtains session cookies for domain, writing the cookie file
// under dir. A nil jar with a nil error means no cookies could be obtained.
type Provisioner interface {
	Provision(ctx context.Context, domain, dir string) (*Jar, error)
}

// Disabled never provisions cookies.
type Disabled struct{}

// Provision implements Provisioner.
func (Disabled) Provision(context.Context, string, string) (*Jar, error) { return nil, nil }

// Func adapts a function to the Provisioner interface.
type Func func(ctx context.Context, domain, dir string) (*Jar, error)

// Provision implements Provisioner.
func (f Func) Provision(ctx context.Context, domain, dir string) (*Jar, error) {
	return f(ctx, domain, dir)
}
