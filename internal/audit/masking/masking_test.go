package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecretKeepsSuffix(t *testing.T) {
	assert.Equal(t, "whsec_****7890", MaskSecret("whsec_1234567890"))
	assert.Equal(t, "sk_****", MaskSecret("sk_abc"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a****@b.com", MaskEmail("alice@b.com"))
	assert.Equal(t, "****body", MaskEmail("nobody"))
}

func TestMaskMetadataOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"email":    "fan@frost.club",
		"tier":     "frost_fan",
		"token":    "tok_abcdefgh",
		"quantity": 2,
		"":         "dropped",
		"nested":   map[string]any{"buyer_email": "x@y.io"},
	})

	assert.Equal(t, "f****@frost.club", out["email"])
	assert.Equal(t, "frost_fan", out["tier"])
	assert.Equal(t, "tok_****efgh", out["token"])
	assert.Equal(t, 2, out["quantity"])
	assert.NotContains(t, out, "")
	assert.Equal(t, "x****@y.io", out["nested"].(map[string]any)["buyer_email"])
	assert.Nil(t, MaskMetadata(nil))
}
