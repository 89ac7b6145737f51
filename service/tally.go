package service

import "live-polling-backend/models"

// ComputeTally counts the ledger entries per declared option. Every option is
// present with at least zero; entries that match no option are dropped.
func ComputeTally(options []models.Option, votes map[string]string) models.Tally {
	tally := make(models.Tally, len(options))
	for _, opt := range options {
		tally[opt.Text] = 0
	}
	for _, choice := range votes {
		if _, ok := tally[choice]; ok {
			tally[choice]++
		}
	}
	return tally
}
