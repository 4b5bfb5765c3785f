package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/qflow/internal/ir"
)

// fixedNow is "today" for every date-relative rule in this package's tests.
var fixedNow = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func nowFunc() time.Time { return fixedNow }

func rule(trigger string, op ir.Operator, value ir.Value, effect ir.Effect) ir.Rule {
	return ir.Rule{Trigger: trigger, Operator: op, Value: value, Effect: effect}
}

func intp(n int) *int { return &n }

func floatp(f float64) *float64 { return &f }

// marriageTemplate is a trimmed version of the agreed-divorce questionnaire:
//
//	kisisel:  ad (required), email
//	evlilik:  evlilik_tarihi (required date)
//	          cocuk_var_mi (hidden until evlilik_tarihi is set)
//	          cocuk_sayisi (shown and required when cocuk_var_mi = evet)
//	cocuklar: velayet (required), step shown when cocuk_var_mi = evet
func marriageTemplate() *ir.Template {
	return &ir.Template{
		ID:       "anlasmali-bosanma",
		Category: "aile",
		Name:     "Anlaşmalı Boşanma",
		Steps: []ir.Step{
			{
				ID:             "kisisel",
				Title:          "Kişisel Bilgiler",
				DefaultVisible: true,
				Questions: []ir.Question{
					{
						ID:              "ad",
						Label:           "Adınız",
						Type:            ir.InputText,
						DefaultVisible:  true,
						DefaultRequired: true,
						Validation:      &ir.Validation{MinLength: intp(2), MaxLength: intp(40)},
					},
					{
						ID:             "email",
						Label:          "E-posta",
						Type:           ir.InputEmail,
						DefaultVisible: true,
					},
				},
			},
			{
				ID:             "evlilik",
				Title:          "Evlilik Bilgileri",
				DefaultVisible: true,
				Questions: []ir.Question{
					{
						ID:              "evlilik_tarihi",
						Label:           "Evlilik tarihi",
						Type:            ir.InputDate,
						DefaultVisible:  true,
						DefaultRequired: true,
					},
					{
						ID:    "cocuk_var_mi",
						Label: "Müşterek çocuğunuz var mı?",
						Type:  ir.InputRadio,
						Options: []ir.Option{
							{Value: "evet", Label: "Evet"},
							{Value: "hayir", Label: "Hayır"},
						},
						Rules: []ir.Rule{
							rule("evlilik_tarihi", ir.OpIsSet, nil, ir.EffectShow),
						},
					},
					{
						ID:         "cocuk_sayisi",
						Label:      "Çocuk sayısı",
						Type:       ir.InputNumber,
						Validation: &ir.Validation{Min: floatp(1), Max: floatp(10)},
						Rules: []ir.Rule{
							rule("cocuk_var_mi", ir.OpEquals, ir.String("evet"), ir.EffectShow),
							rule("cocuk_var_mi", ir.OpEquals, ir.String("evet"), ir.EffectRequire),
						},
					},
				},
			},
			{
				ID:    "cocuklar",
				Title: "Çocuklar",
				Rules: []ir.Rule{
					rule("cocuk_var_mi", ir.OpEquals, ir.String("evet"), ir.EffectShow),
				},
				Questions: []ir.Question{
					{
						ID:              "velayet",
						Label:           "Velayet kimde olacak?",
						Type:            ir.InputSingleSelect,
						DefaultVisible:  true,
						DefaultRequired: true,
						Options: []ir.Option{
							{Value: "anne", Label: "Anne"},
							{Value: "baba", Label: "Baba"},
							{Value: "ortak", Label: "Ortak"},
						},
					},
				},
			},
		},
	}
}

func newTestSession(opts ...SessionOption) *Session {
	base := []SessionOption{
		WithSessionID("s-1"),
		WithNow(nowFunc),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	return NewSession(marriageTemplate(), append(base, opts...)...)
}
