// Package category defines the static registry of notification categories.
//
// A category bundles the display treatment and the default urgency weight for
// one classification bucket. Descriptors are immutable for the process
// lifetime; unknown names resolve to the generic "info" descriptor.
package category

import "sort"

// Well-known category names.
const (
	Emergency   = "emergency"
	Security    = "security"
	Critical    = "critical"
	Error       = "error"
	Warning     = "warning"
	Maintenance = "maintenance"
	Resource    = "resource"
	Inventory   = "inventory"
	Staff       = "staff"
	Schedule    = "schedule"
	Budget      = "budget"
	Recipe      = "recipe"
	Success     = "success"
	Sync        = "sync"
	Update      = "update"
	Info        = "info"
	System      = "system"
	Startup     = "startup"
	Debug       = "debug"
)

// Descriptor is the static profile of a category.
//
// Weight is the default priority for records in this category: lower values
// are more urgent (1 = highest urgency).
type Descriptor struct {
	Name            string `json:"name"`
	Weight          int    `json:"weight"`
	Color           string `json:"color"`
	Icon            string `json:"icon"`
	SoundOnCritical bool   `json:"sound_on_critical"`
	Persist         bool   `json:"persist"`
}

var registry = map[string]Descriptor{
	Emergency:   {Name: Emergency, Weight: 1, Color: "#d32f2f", Icon: "🚨", SoundOnCritical: true, Persist: true},
	Security:    {Name: Security, Weight: 2, Color: "#c2185b", Icon: "🔒", SoundOnCritical: true, Persist: true},
	Critical:    {Name: Critical, Weight: 3, Color: "#e64a19", Icon: "❗", SoundOnCritical: true, Persist: true},
	Error:       {Name: Error, Weight: 4, Color: "#f4511e", Icon: "❌", SoundOnCritical: true, Persist: true},
	Warning:     {Name: Warning, Weight: 6, Color: "#fbc02d", Icon: "⚠️", Persist: true},
	Maintenance: {Name: Maintenance, Weight: 7, Color: "#7b1fa2", Icon: "🔧", Persist: true},
	Resource:    {Name: Resource, Weight: 7, Color: "#5d4037", Icon: "📉", Persist: true},
	Inventory:   {Name: Inventory, Weight: 9, Color: "#388e3c", Icon: "📦", Persist: true},
	Staff:       {Name: Staff, Weight: 9, Color: "#1976d2", Icon: "👤", Persist: true},
	Schedule:    {Name: Schedule, Weight: 9, Color: "#0097a7", Icon: "📅", Persist: true},
	Budget:      {Name: Budget, Weight: 10, Color: "#afb42b", Icon: "💰", Persist: true},
	Recipe:      {Name: Recipe, Weight: 10, Color: "#f57c00", Icon: "🍳", Persist: true},
	Success:     {Name: Success, Weight: 12, Color: "#43a047", Icon: "✅", Persist: false},
	Sync:        {Name: Sync, Weight: 12, Color: "#00796b", Icon: "🔄", Persist: false},
	Update:      {Name: Update, Weight: 12, Color: "#455a64", Icon: "⬆️", Persist: false},
	Info:        {Name: Info, Weight: 13, Color: "#616161", Icon: "ℹ️", Persist: false},
	System:      {Name: System, Weight: 14, Color: "#37474f", Icon: "⚙️", Persist: false},
	Startup:     {Name: Startup, Weight: 15, Color: "#78909c", Icon: "▶️", Persist: false},
	Debug:       {Name: Debug, Weight: 16, Color: "#9e9e9e", Icon: "🐞", Persist: false},
}

// Resolve returns the descriptor registered for name, or the generic "info"
// descriptor for names the registry doesn't know. It never fails.
func Resolve(name string) Descriptor {
	if d, ok := registry[name]; ok {
		return d
	}
	return registry[Info]
}

// Known reports whether name is a registered category.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns all registered category names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CriticalGroup is the set of category names the "critical" list filter
// expands to.
var CriticalGroup = []string{Critical, Emergency, Security}
