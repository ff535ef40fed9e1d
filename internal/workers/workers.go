package workers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"hivehook/internal/engine/secrets"
	"hivehook/internal/platform/repositories"
)

// Rotator is the part of the encryption engine the rotation pass needs.
type Rotator interface {
	NeedsRotation(env *secrets.Envelope) bool
	DecryptField(field string, env *secrets.Envelope) ([]byte, error)
	EncryptString(field, plaintext string) (string, error)
}

type Stores struct {
	Repositories *repositories.RepositoryRepository
	Workflows    *repositories.WorkflowConfigRepository
	Credentials  *repositories.CredentialRepository
}

type RotationReport struct {
	Scanned int
	Rotated int
	Skipped int
}

// RotateSecrets re-encrypts every stored envelope that is not under the
// active key and algorithm. Envelopes that fail to parse or decrypt are
// logged and left untouched. Writes only land if the envelope is unchanged
// since it was read, so a secret replaced mid-pass is never reverted.
func RotateSecrets(ctx context.Context, engine Rotator, stores Stores) (RotationReport, error) {
	var report RotationReport
	l := zerolog.Ctx(ctx)

	repos, err := stores.Repositories.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list repositories: %w", err)
	}
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sealed, ok := reseal(l, engine, &report, secrets.FieldWebhookSecret, repo.WebhookSecret, repo.ID)
		if !ok {
			continue
		}
		swapped, err := stores.Repositories.SwapWebhookSecret(ctx, repo.ID, repo.WebhookSecret, sealed)
		if err != nil {
			return report, fmt.Errorf("update webhook secret %s: %w", repo.ID, err)
		}
		record(l, &report, swapped, secrets.FieldWebhookSecret, repo.ID)
	}

	workflows, err := stores.Workflows.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list workflow configs: %w", err)
	}
	for _, wf := range workflows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sealed, ok := reseal(l, engine, &report, secrets.FieldAPIKey, wf.APIKey, wf.WorkspaceID)
		if !ok {
			continue
		}
		swapped, err := stores.Workflows.SwapAPIKey(ctx, wf.WorkspaceID, wf.APIKey, sealed)
		if err != nil {
			return report, fmt.Errorf("update api key %s: %w", wf.WorkspaceID, err)
		}
		record(l, &report, swapped, secrets.FieldAPIKey, wf.WorkspaceID)
	}

	creds, err := stores.Credentials.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list credentials: %w", err)
	}
	for _, cred := range creds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sealed, ok := reseal(l, engine, &report, secrets.FieldAccessToken, cred.AccessToken, cred.UserID)
		if !ok {
			continue
		}
		swapped, err := stores.Credentials.SwapAccessToken(ctx, cred.UserID, cred.AccessToken, sealed)
		if err != nil {
			return report, fmt.Errorf("update access token %s: %w", cred.UserID, err)
		}
		record(l, &report, swapped, secrets.FieldAccessToken, cred.UserID)
	}

	return report, nil
}

// record counts the outcome of a conditional write. A lost swap means the
// secret was replaced after it was read.
func record(l *zerolog.Logger, report *RotationReport, swapped bool, field, owner string) {
	if swapped {
		report.Rotated++
		return
	}
	report.Skipped++
	l.Info().Str("field", field).Str("owner", owner).Msg("envelope changed during rotation, skipping")
}

// reseal returns the replacement envelope text for text, or false when the
// envelope is current or unusable.
func reseal(l *zerolog.Logger, engine Rotator, report *RotationReport, field, text, owner string) (string, bool) {
	if text == "" {
		return "", false
	}
	report.Scanned++

	env, err := secrets.ParseEnvelope(text)
	if err != nil {
		report.Skipped++
		l.Warn().Str("field", field).Str("owner", owner).Msg("stored envelope is malformed, skipping")
		return "", false
	}
	if !engine.NeedsRotation(env) {
		return "", false
	}

	plaintext, err := engine.DecryptField(field, env)
	if err != nil {
		report.Skipped++
		l.Warn().Str("field", field).Str("owner", owner).Str("key_id", env.KeyID).Msg("stored envelope could not be decrypted, skipping")
		return "", false
	}

	sealed, err := engine.EncryptString(field, string(plaintext))
	if err != nil {
		report.Skipped++
		l.Error().Err(err).Str("field", field).Str("owner", owner).Msg("re-encryption failed")
		return "", false
	}
	return sealed, true
}
