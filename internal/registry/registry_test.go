package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
)

func noopBuilder(ctx context.Context, req *resolver.Request) error { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterProducer(noopBuilder, "anat_reorient")
	r.RegisterProducer(noopBuilder, "anat_gm_mask", "anat_wm_mask", "anat_csf_mask")

	b, ok := r.BuilderFor("anat_gm_mask")
	assert.True(t, ok)
	assert.NotNil(t, b)

	_, ok = r.BuilderFor("unknown")
	assert.False(t, ok)

	assert.Equal(t,
		[]string{"anat_csf_mask", "anat_gm_mask", "anat_reorient", "anat_wm_mask"},
		r.Resources())
}

func TestRegistry_DuplicateProducerPanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterProducer(noopBuilder, "anat_reorient")
	require.Panics(t, func() {
		r.RegisterProducer(noopBuilder, "anat_reorient")
	})
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterProducer(noopBuilder, "anat_reorient")

	require.NoError(t, r.Validate([]string{"anat_reorient"}))

	err := r.Validate([]string{"anat_reorient", "anat_linear_xfm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anat_linear_xfm")
}
