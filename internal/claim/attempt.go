package claim

import (
	"context"
	"errors"
	"strings"

	"github.com/example/slotclaim/internal/portal"
)

// Selectors locate the parts of the group registration page.
type Selectors struct {
	Slot         string
	Label        string
	Occupancy    string
	Register     string
	RegForm      string
	Confirmation string
}

// DefaultSelectors returns the portal's selectors. locale narrows the
// register button label to "de" (Anmelden) or "en" (Register); any other
// value accepts both.
func DefaultSelectors(locale string) Selectors {
	register := `input[value="Anmelden"], input[value="Register"]`
	switch locale {
	case "de":
		register = `input[value="Anmelden"]`
	case "en":
		register = `input[value="Register"]`
	}
	return Selectors{
		Slot:         ".groupWrapper",
		Label:        ".groupHeadertrigger",
		Occupancy:    ".rightLink",
		Register:     register,
		RegForm:      "#regForm",
		Confirmation: "#confirmForm",
	}
}

// Slot is a group wrapper resolved on the current page.
type Slot struct {
	Label string
	Text  string
	El    portal.Element
}

var errNoControl = errors.New("control not found")

// Attempter runs the register flow for one slot.
type Attempter struct {
	Selectors Selectors
	DryRun    bool
}

// Attempt checks the slot's occupancy and, if there is room, registers for
// it. The occupancy check always happens before any click.
func (a Attempter) Attempt(ctx context.Context, page portal.Page, slot Slot) Result {
	res := Result{Label: slot.Label}
	fail := func(stage string, err error) Result {
		if err == nil {
			err = errNoControl
		}
		res.Kind = Failed
		res.Err = &ClaimError{Stage: stage, Err: err}
		return res
	}

	occ, err := a.occupancy(ctx, slot.El)
	if err != nil {
		return fail(StageOccupancy, err)
	}
	if occ != nil {
		res.Occupancy = occ
		if occ.Full() {
			res.Kind = Full
			return res
		}
	}

	if a.DryRun {
		res.Kind = Claimed
		return res
	}

	register, err := slot.El.Query(ctx, a.Selectors.Register)
	if err != nil || register == nil {
		return fail(StageRegister, err)
	}
	if err := page.Activate(ctx, register); err != nil {
		return fail(StageRegister, err)
	}

	form, err := page.WaitFor(ctx, a.Selectors.RegForm)
	if err != nil || form == nil {
		return fail(StageForm, err)
	}
	confirm, err := form.Query(ctx, a.Selectors.Register)
	if err != nil || confirm == nil {
		return fail(StageConfirm, err)
	}
	if err := page.ActivateAndSettle(ctx, confirm); err != nil {
		return fail(StageConfirm, err)
	}

	if _, err := page.WaitFor(ctx, a.Selectors.Confirmation); err != nil {
		return fail(StageConfirmation, err)
	}
	res.Kind = Claimed
	return res
}

// occupancy returns nil when the slot shows no counter.
func (a Attempter) occupancy(ctx context.Context, el portal.Element) (*Occupancy, error) {
	counter, err := el.Query(ctx, a.Selectors.Occupancy)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, nil
	}
	text, err := counter.Text(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	occ, err := ParseOccupancy(text)
	if err != nil {
		return nil, err
	}
	return &occ, nil
}
