package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/slotclaim/internal/portal"
)

// Orchestrator tries candidate groups in priority order until one is claimed.
type Orchestrator struct {
	Browser    portal.Browser
	URL        string
	Candidates []string
	Selectors  Selectors

	// DefaultToFirst also tries the page's first group once every
	// candidate has failed.
	DefaultToFirst bool

	Logger *slog.Logger
}

// Claim runs one pass over the candidates. It returns nil on the first
// claimed group and *NoCandidateError once the list is exhausted.
func (o *Orchestrator) Claim(ctx context.Context, dryRun bool) error {
	page, err := o.Browser.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			o.Logger.Warn("close signup page", "err", cerr)
		}
	}()

	slots, err := o.load(ctx, page)
	if err != nil {
		return err
	}
	att := Attempter{Selectors: o.Selectors, DryRun: dryRun}

	if len(slots) == 1 && slots[0].Label == "" {
		o.Logger.Info("single unnamed group, ignoring candidate list")
		r := att.Attempt(ctx, page, slots[0])
		if r.Kind == Claimed {
			o.logClaimed(r, dryRun)
			return nil
		}
		o.logSkipped(r)
		return &NoCandidateError{Tried: 1}
	}

	tried := 0
	firstTried := false
	for _, label := range o.Candidates {
		tried++
		o.Logger.Info("trying group", "group", label)

		i, ok := resolve(slots, label)
		if !ok {
			o.logSkipped(Result{Kind: NotFound, Label: label})
			continue
		}
		firstTried = firstTried || i == 0
		slot := slots[i]
		r := att.Attempt(ctx, page, slot)
		r.Label = label
		if r.Kind == Claimed {
			o.logClaimed(r, dryRun)
			return nil
		}
		o.logSkipped(r)

		if clicked(r) {
			if slots, err = o.load(ctx, page); err != nil {
				return err
			}
		}
	}

	if o.DefaultToFirst && len(slots) > 0 && !firstTried {
		tried++
		o.Logger.Info("trying first group as fallback", "group", slots[0].Label)
		r := att.Attempt(ctx, page, slots[0])
		if r.Kind == Claimed {
			o.logClaimed(r, dryRun)
			return nil
		}
		o.logSkipped(r)
	}

	return &NoCandidateError{Tried: tried}
}

// load navigates to the signup page and reads every group wrapper on it.
func (o *Orchestrator) load(ctx context.Context, page portal.Page) ([]Slot, error) {
	if err := page.Goto(ctx, o.URL); err != nil {
		return nil, fmt.Errorf("open signup page: %w", err)
	}
	if _, err := page.WaitFor(ctx, o.Selectors.Slot); err != nil {
		return nil, fmt.Errorf("wait for groups: %w", err)
	}
	els, err := page.QueryAll(ctx, o.Selectors.Slot)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	slots := make([]Slot, 0, len(els))
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("read group text: %w", err)
		}
		label := ""
		if l, err := el.Query(ctx, o.Selectors.Label); err == nil && l != nil {
			if t, err := l.Text(ctx); err == nil {
				label = strings.TrimSpace(t)
			}
		}
		slots = append(slots, Slot{Label: label, Text: text, El: el})
	}
	return slots, nil
}

// resolve returns the index of the first slot whose visible text contains
// label.
func resolve(slots []Slot, label string) (int, bool) {
	for i, s := range slots {
		if strings.Contains(s.Text, label) {
			return i, true
		}
	}
	return -1, false
}

// clicked reports whether the attempt got far enough to leave the page.
func clicked(r Result) bool {
	var ce *ClaimError
	return errors.As(r.Err, &ce) && ce.Stage != StageOccupancy && ce.Stage != StageRegister
}

func (o *Orchestrator) logClaimed(r Result, dryRun bool) {
	if dryRun {
		o.Logger.Info("dry run: group would be claimed", "group", r.Label, "occupancy", occString(r.Occupancy))
		return
	}
	o.Logger.Info("group claimed", "group", r.Label, "occupancy", occString(r.Occupancy))
}

func (o *Orchestrator) logSkipped(r Result) {
	attrs := []any{"group", r.Label, "result", r.Kind.String(), "occupancy", occString(r.Occupancy)}
	var ce *ClaimError
	if errors.As(r.Err, &ce) {
		attrs = append(attrs, "stage", ce.Stage, "err", ce.Err)
	}
	o.Logger.Warn("group signup failed", attrs...)
}

func occString(o *Occupancy) string {
	if o == nil {
		return "unbounded"
	}
	return o.String()
}
