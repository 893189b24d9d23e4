package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-referrals/command"
	"github.com/goliatone/go-referrals/handler"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type provisionFlags struct {
	email       string
	phone       string
	firstName   string
	lastName    string
	note        string
	referrerID  string
	groupID     string
	redirectURL string
	pretty      bool
}

var provisionOpts provisionFlags

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Run a single referral provisioning request and print the response",
	Example: `  referrals provision --email jane@example.com --first-name Jane \
    --referrer 7d0f... --group 1a2b...`,
	RunE: runProvision,
}

func init() {
	f := provisionCmd.Flags()
	f.StringVar(&provisionOpts.email, "email", "", "email of the referred person")
	f.StringVar(&provisionOpts.phone, "phone", "", "phone of the referred person")
	f.StringVar(&provisionOpts.firstName, "first-name", "", "first name")
	f.StringVar(&provisionOpts.lastName, "last-name", "", "last name")
	f.StringVar(&provisionOpts.note, "note", "", "free-form referral note")
	f.StringVar(&provisionOpts.referrerID, "referrer", "", "referrer user id")
	f.StringVar(&provisionOpts.groupID, "group", "", "group id for the pending membership")
	f.StringVar(&provisionOpts.redirectURL, "redirect-url", "", "verification redirect override")
	f.BoolVar(&provisionOpts.pretty, "pretty", false, "highlight the JSON output")
}

func runProvision(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := WithPersistence(ctx, app, true); err != nil {
		return err
	}
	if err := WithReferralService(ctx, app); err != nil {
		return err
	}

	body := provisionOpts.execute(ctx, app)
	if provisionOpts.pretty {
		fmt.Fprintln(cmd.OutOrStdout(), print.MaybeHighlightJSON(body))
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

// execute mirrors the HTTP contract: failures are reported in the body.
func (o provisionFlags) execute(ctx context.Context, app *App) any {
	referrerID, err := parseFlagUUID(o.referrerID)
	if err != nil {
		return handler.ErrorResponse{OK: false, Error: handler.MessageInvalidReferrer}
	}
	groupID, err := parseFlagUUID(o.groupID)
	if err != nil {
		return handler.ErrorResponse{OK: false, Error: handler.MessageInvalidGroup}
	}

	result := &command.ReferralProvisionResult{}
	err = app.service.Commands().ReferralProvision.Execute(ctx, command.ReferralProvisionInput{
		Email:       o.email,
		Phone:       o.phone,
		FirstName:   o.firstName,
		LastName:    o.lastName,
		Note:        o.note,
		ReferrerID:  referrerID,
		GroupID:     groupID,
		RedirectURL: o.redirectURL,
		Result:      result,
	})
	if err != nil {
		return handler.ErrorResponse{OK: false, Error: handler.FailureMessage(err, result)}
	}
	return handler.NewProvisionResponse(*result)
}

func parseFlagUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
