// Package classify infers a notification category from free text.
//
// Classification is an ordered substring scan from most to least severe
// category: when a message mentions both "error" and "low stock", the more
// actionable "error" wins. No scoring, no NLP: first match in severity order
// is the answer, and "info" is the fallback when nothing matches.
package classify

import (
	"strings"

	"hearth/internal/category"
)

type keywordGroup struct {
	category string
	keywords []string
}

// groups is scanned in order; earlier entries are more severe and win ties.
var groups = []keywordGroup{
	{category.Emergency, []string{"emergency", "evacuate", "fire", "gas leak", "smoke", "urgent"}},
	{category.Security, []string{"security", "unauthorized", "breach", "intrusion", "login attempt", "locked out"}},
	{category.Critical, []string{"critical", "fatal", "outage", "offline", "unreachable"}},
	{category.Error, []string{"error", "failure", "failed", "exception", "crash", "corrupt"}},
	{category.Maintenance, []string{"maintenance", "repair", "service due", "calibration", "filter"}},
	{category.Resource, []string{"low stock", "out of stock", "running low", "shortage", "expir", "capacity"}},
	{category.Warning, []string{"warning", "caution", "attention", "threshold", "overdue"}},
	{category.Inventory, []string{"inventory", "stock", "ingredient", "supplier", "delivery", "restock"}},
	{category.Staff, []string{"staff", "employee", "shift swap", "absence", "overtime", "clock in", "clock out"}},
	{category.Schedule, []string{"schedule", "shift", "roster", "rota", "booking"}},
	{category.Budget, []string{"budget", "cost", "expense", "invoice", "overspend", "price"}},
	{category.Recipe, []string{"recipe", "menu", "dish", "portion", "serving"}},
	{category.Success, []string{"success", "completed", "complete", "done", "finished", "saved"}},
	{category.Sync, []string{"sync", "synchroniz", "backup", "upload", "cloud"}},
	{category.Update, []string{"update", "upgrade", "new version", "patch"}},
	{category.Debug, []string{"debug", "trace", "diagnostic"}},
	{category.Startup, []string{"startup", "started", "booting", "initializ"}},
	{category.System, []string{"system", "database", "session", "config"}},
}

// Classify returns the category key for a free-text notification.
//
// It always returns a valid registry key; category.Info is the fallback when
// no keyword group matches.
func Classify(title, message string) string {
	text := strings.ToLower(title + " " + message)
	for _, g := range groups {
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				return g.category
			}
		}
	}
	return category.Info
}
