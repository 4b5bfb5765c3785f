package catalog

import (
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
)

func TestAllLoadsEmbeddedTemplates(t *testing.T) {
	all, err := All()
	require.NoError(t, err)

	ids, err := IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"anlasmali-bosanma", "cekismeli-bosanma"}, ids)
	require.Len(t, all, 2)
	for i, tpl := range all {
		assert.Equal(t, ids[i], tpl.ID)
	}
}

func TestEmbeddedTemplatesAreLintClean(t *testing.T) {
	all, err := All()
	require.NoError(t, err)

	for _, tpl := range all {
		assert.Empty(t, compiler.Lint(tpl), tpl.ID)
		assert.NotEmpty(t, ir.MustTemplateHash(tpl))
	}
}

func TestGet(t *testing.T) {
	tpl, err := Get("cekismeli-bosanma")
	require.NoError(t, err)
	assert.Equal(t, "Çekişmeli Boşanma Dava Dilekçesi", tpl.Name)

	opts := tpl.Steps[2].Questions[0].Options
	require.Len(t, opts, 2, "options shared through a CUE definition")
	assert.Equal(t, "evet", opts[0].Value)

	_, err = Get("yok")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `"yok"`)
}

func TestShortMarriageWarning(t *testing.T) {
	tpl, err := Get("anlasmali-bosanma")
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) }
	s := engine.NewSession(tpl, engine.WithNow(now), engine.WithLogger(slog.New(slog.DiscardHandler)))
	assert.False(t, s.IsVisible("cocuk_var_mi"))

	_, err = s.ProcessAnswer("evlilik_tarihi", ir.String("2023-12-01"), false)
	require.NoError(t, err)
	assert.True(t, s.IsVisible("sure_uyarisi_onay"))
	assert.True(t, s.IsRequired("sure_uyarisi_onay"))
	assert.True(t, s.IsVisible("cocuk_var_mi"))

	_, err = s.ProcessAnswer("evlilik_tarihi", ir.String("2015-06-20"), false)
	require.NoError(t, err)
	assert.False(t, s.IsVisible("sure_uyarisi_onay"))
	assert.True(t, s.IsVisible("cocuk_var_mi"))
}

func TestAdulteryDeadline(t *testing.T) {
	tpl, err := Get("cekismeli-bosanma")
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) }
	s := engine.NewSession(tpl, engine.WithNow(now), engine.WithLogger(slog.New(slog.DiscardHandler)))

	_, err = s.ProcessAnswer("evlilik_tarihi", ir.String("2010-05-05"), false)
	require.NoError(t, err)
	_, err = s.ProcessAnswer("bosanma_nedenleri", ir.StringList{"zina", "terk"}, false)
	require.NoError(t, err)
	assert.True(t, s.IsRequired("zina_ogrenme_tarihi"))

	_, err = s.ProcessAnswer("zina_ogrenme_tarihi", ir.String("2024-01-10"), false)
	require.NoError(t, err)
	assert.False(t, s.IsVisible("zina_sure_uyarisi_onay"))

	_, err = s.ProcessAnswer("zina_ogrenme_tarihi", ir.String("2023-06-01"), false)
	require.NoError(t, err)
	assert.True(t, s.IsVisible("zina_sure_uyarisi_onay"))
}

func TestChildStepFollowsAnswer(t *testing.T) {
	tpl, err := Get("anlasmali-bosanma")
	require.NoError(t, err)
	s := engine.NewSession(tpl, engine.WithLogger(slog.New(slog.DiscardHandler)))

	snap, err := s.ProcessAnswer("cocuk_var_mi", ir.String("evet"), false)
	require.NoError(t, err)
	assert.Contains(t, snap.VisibleSteps, "cocuklar")
	assert.False(t, s.IsVisible("nafaka_miktari"))

	_, err = s.ProcessAnswer("velayeti_alacak_taraf", ir.String("davaci"), false)
	require.NoError(t, err)
	assert.True(t, s.IsVisible("nafaka_miktari"))

	_, err = s.ProcessAnswer("nafaka_miktari", ir.String("7500"), false)
	require.NoError(t, err)
	assert.True(t, s.IsVisible("nafaka_artis_orani"))

	snap, err = s.ProcessAnswer("cocuk_var_mi", ir.String("hayir"), false)
	require.NoError(t, err)
	assert.NotContains(t, snap.VisibleSteps, "cocuklar")
}

func TestChildGroupRepeatsPerChild(t *testing.T) {
	tpl, err := Get("anlasmali-bosanma")
	require.NoError(t, err)
	s := engine.NewSession(tpl, engine.WithLogger(slog.New(slog.DiscardHandler)))

	assert.False(t, s.IsVisible("cocuk_ad_soyad_1"), "children step hidden")

	_, err = s.ProcessAnswer("cocuk_var_mi", ir.String("evet"), false)
	require.NoError(t, err)
	assert.True(t, s.IsVisible("cocuk_ad_soyad_1"))
	assert.True(t, s.IsRequired("cocuk_dogum_tarihi_1"))
	assert.False(t, s.IsVisible("cocuk_ad_soyad_2"))

	snap, err := s.AddGroupInstance("cocuk")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.GroupInstances["cocuk"])
	assert.Contains(t, snap.RequiredQuestions, "cocuk_ad_soyad_2")

	q, ok := tpl.Question("cocuk_ad_soyad")
	assert.False(t, ok, "group questions are only addressable per instance")
	assert.Nil(t, q)

	_, err = s.ProcessAnswer("cocuk_ozel_durum_2", ir.String("evet"), false)
	require.NoError(t, err)
	assert.True(t, s.IsVisible("cocuk_ozel_durum_aciklama_2"))
	assert.False(t, s.IsVisible("cocuk_ozel_durum_aciklama_1"), "instances resolve independently")

	info, err := s.GroupInfo("cocuk")
	require.NoError(t, err)
	assert.Equal(t, "cocuklar", info.StepID)
	assert.True(t, info.CanRemove)
	assert.Equal(t, 10, info.Max)
}

func TestLoadFSRejectsDuplicateIDs(t *testing.T) {
	doc := "id: dup\nsteps:\n  - id: s\n    questions:\n      - {id: q, type: text}\n"
	fsys := fstest.MapFS{
		"t/a.yaml":   {Data: []byte(doc)},
		"t/b.yml":    {Data: []byte(doc)},
		"t/notes.md": {Data: []byte("ignored")},
	}

	_, _, err := loadFS(fsys, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dup"`)
}

func TestLoadFSReportsInvalidTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"t/bad.yaml": {Data: []byte("id: bad\nsteps: []\n")},
	}

	_, _, err := loadFS(fsys, "t")
	require.Error(t, err)
	assert.True(t, compiler.IsInvalidTemplate(err))
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestLoadFSSkipsOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"t/ok.json":  {Data: []byte(`{"id":"ok","steps":[{"id":"s","questions":[{"id":"q","type":"text"}]}]}`)},
		"t/README":   {Data: []byte("x")},
		"t/sub/x.md": {Data: []byte("x")},
	}

	byID, order, err := loadFS(fsys, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, order)
	assert.Contains(t, byID, "ok")
}
