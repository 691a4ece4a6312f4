package common

// DatastarScript is the client bundle every page loads.
const DatastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

// NavItem is one entry of the top navigation.
type NavItem struct {
	Path  string
	Label string
}

// Nav is the top navigation, in display order.
var Nav = []NavItem{
	{Path: "/", Label: "Dashboard"},
	{Path: "/certificates", Label: "Certificates"},
}

// Notice kinds.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// NoticeID is the element every notice patch replaces.
const NoticeID = "notice"
