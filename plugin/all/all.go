// Package all blank-imports every plugin implementation so their init()
// functions register with the builder registry. Import this package
// (and only this package) from the process entry point.
package all

import (
	_ "github.com/ahdark-oss/vdns/plugin/cache"
	_ "github.com/ahdark-oss/vdns/plugin/domainset"
	_ "github.com/ahdark-oss/vdns/plugin/forward"
	_ "github.com/ahdark-oss/vdns/plugin/hosts"
	_ "github.com/ahdark-oss/vdns/plugin/ipset"
	_ "github.com/ahdark-oss/vdns/plugin/sequence"
)
