package dashboard

import (
	"strconv"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// tabLink opens the certificate list on the status tab.
func tabLink(s core.Status) string {
	return "/certificates?tab=" + strconv.Itoa(int(s))
}
