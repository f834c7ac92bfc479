package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/policy-extraction-service/internal/fields"
	"github.com/toricodesthings/policy-extraction-service/internal/segment"
)

const vehicleBlock = `Descrição do Item - 1 - Produto Auto Frota
CEP de Pernoite do Veículo: 01310-100 Tipo de utilização: Particular
Fabricante: VOLKSWAGEN
Veículo: GOL 1.0 MPI
Ano Fabricação: 2021 Ano Modelo: 2022
Chassi: 9BWAG45U1NT000001 Placa: BRA2E19
Combustível: Flex Lotação Veículo: 5
Veículo 0km: Não Veículo Blindado: Não
Veículo com Kit Gás: Não Tipo de Carroceria: Hatch
Isenção Fiscal: Não
Proprietário: ACME LTDA
Fipe: 005340-6
Nr Apólice Congenere: 998877 Nome da Congenere: OUTRA SEGURADORA
Venc Apólice Cong.: 01/02/2024
Classe de Bônus: 5
Código de Identificação (CI): 12345678
Km de Reboque: 200 Km(Adicional): 100
Casco 100% Fipe R$ 45.000,00 R$ 1.234,56
RCF-V Danos Materiais R$ 100.000,00 R$ 350,00
Prêmio Líquido: R$ 2.000,00
IOF: R$ 147,60
Prêmio Total: R$ 2.147,60
Franquia Casco: R$ 3.500,00
Tipo de Franquia: Reduzida
Para-brisa: R$ 250,00`

func mustDefault(t *testing.T) *Schema {
	t.Helper()
	s, err := Default()
	require.NoError(t, err)
	return s
}

func TestDefaultSchemaCompiles(t *testing.T) {
	s := mustDefault(t)

	assert.Equal(t, []string{
		"NOME DO CLIENTE", "CNPJ", "APÓLICE", "VIGÊNCIA", "INÍCIO DE VIGÊNCIA", "CORRETOR", "PRÊMIO TOTAL",
	}, s.HeaderNames())

	names := s.VehicleNames()
	assert.GreaterOrEqual(t, len(names), 50)
	assert.Equal(t, "DESCRIÇÃO DO ITEM", names[0])

	money := s.VehicleFields(func(f Field) bool { return f.Money })
	assert.NotEmpty(t, money)
	for _, f := range money {
		assert.NotEqual(t, GroupIdentification, f.Group, f.Name)
	}

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestParseHeaderEndToEnd(t *testing.T) {
	p := NewParser(mustDefault(t))
	text := "Tokio Marine Seguradora S.A.\nProprietário: ACME LTDA\nCNPJ: 12.345.678/0001-99\nNr Apólice: 00012345\nVenc Apólice: 31/12/2025"

	h := p.ParseHeader(text)

	assert.Equal(t, "ACME LTDA", h.Get("NOME DO CLIENTE").Text)
	assert.Equal(t, "12.345.678/0001-99", h.Get("CNPJ").Text)
	assert.Equal(t, "00012345", h.Get(FieldPolicyNumber).Text)
	assert.Equal(t, "31/12/2025", h.Get("VIGÊNCIA").Text)
	assert.Equal(t, fields.NotFound, h.Get("CORRETOR").Text)
	assert.Len(t, h.Values, len(p.Schema().Header))
}

func TestParseHeaderFallsBackToSegurado(t *testing.T) {
	p := NewParser(mustDefault(t))
	h := p.ParseHeader("Segurado: TRANSPORTES XYZ LTDA\nDocumento 11.222.333/0001-44")

	assert.Equal(t, "TRANSPORTES XYZ LTDA", h.Get("NOME DO CLIENTE").Text)
	assert.Equal(t, "11.222.333/0001-44", h.Get("CNPJ").Text, "shape fallback without label")
}

func TestParseValuesBelowLabels(t *testing.T) {
	p := NewParser(mustDefault(t))

	h := p.ParseHeader("Proprietário:\nACME LTDA\nCNPJ: 12.345.678/0001-99")
	assert.Equal(t, "ACME LTDA", h.Get("NOME DO CLIENTE").Text)
	assert.Equal(t, "12.345.678/0001-99", h.Get("CNPJ").Text)

	rec := p.ParseVehicle(segment.Span{
		Item: "1",
		Text: "Veículo:\nGOL 1.0 MPI\nCombustível:\nFlex\nTipo de utilização:\nParticular",
	})
	assert.Equal(t, "GOL 1.0 MPI", rec.Get("VEÍCULO").Text)
	assert.Equal(t, "Flex", rec.Get("COMBUSTÍVEL").Text)
	assert.Equal(t, "Particular", rec.Get("TIPO DE UTILIZAÇÃO").Text)
}

func TestParseEmptyText(t *testing.T) {
	s := mustDefault(t)
	p := NewParser(s)

	spans, _ := segment.Split("")
	doc := p.Parse("", spans)

	assert.Empty(t, doc.Vehicles)
	assert.Empty(t, doc.PolicyNumber())
	require.Len(t, doc.Header.Values, len(s.Header))
	for name, v := range doc.Header.Values {
		assert.Equal(t, fields.NotFound, v.Text, name)
		assert.False(t, v.Found, name)
	}
}

func TestParseVehicleFields(t *testing.T) {
	s := mustDefault(t)
	p := NewParser(s)

	rec := p.ParseVehicle(segment.Span{Item: "1", Text: vehicleBlock})
	assert.Equal(t, "1", rec.Item)

	want := map[string]string{
		"DESCRIÇÃO DO ITEM":            "1 - Produto Auto Frota",
		"CEP DE PERNOITE DO VEÍCULO":   "01310-100",
		"TIPO DE UTILIZAÇÃO":           "Particular",
		"FABRICANTE":                   "VOLKSWAGEN",
		"VEÍCULO":                      "GOL 1.0 MPI",
		"ANO FABRICAÇÃO":               "2021",
		"ANO MODELO":                   "2022",
		"CHASSI":                       "9BWAG45U1NT000001",
		"PLACA":                        "BRA2E19",
		"COMBUSTÍVEL":                  "Flex",
		"LOTAÇÃO VEÍCULO":              "5",
		"VEÍCULO 0KM":                  "Não",
		"VEÍCULO BLINDADO":             "Não",
		"VEÍCULO COM KIT GÁS":          "Não",
		"TIPO DE CARROCERIA":           "Hatch",
		"ISENÇÃO FISCAL":               "Não",
		"PROPRIETÁRIO":                 "ACME LTDA",
		"FIPE":                         "005340-6",
		"TIPO DE SEGURO":               "Renovação Tokio sem sinistro",
		"NR APÓLICE CONGENERE":         "998877",
		"NOME DA CONGENERE":            "OUTRA SEGURADORA",
		"VENC APÓLICE CONGENERE":       "01/02/2024",
		"CLASSE DE BÔNUS":              "5",
		"CÓDIGO DE IDENTIFICAÇÃO (CI)": "12345678",
		"KM DE REBOQUE":                "200",
		"KM (ADICIONAL)":               "100",
		"TIPO DE FRANQUIA":             "Reduzida",
	}
	for name, text := range want {
		assert.Equal(t, text, rec.Get(name).Text, name)
	}

	money := map[string]float64{
		"LMI CASCO":                    45000,
		"PRÊMIO CASCO":                 1234.56,
		"LMI RCF-V DANOS MATERIAIS":    100000,
		"PRÊMIO RCF-V DANOS MATERIAIS": 350,
		"PRÊMIO LÍQUIDO":               2000,
		"IOF":                          147.60,
		"PRÊMIO TOTAL":                 2147.60,
		"FRANQUIA CASCO":               3500,
		"FRANQUIA PARA-BRISA":          250,
	}
	for name, n := range money {
		v := rec.Get(name)
		require.True(t, v.Numeric, name)
		assert.InDelta(t, n, v.Number, 1e-6, name)
	}

	for _, name := range []string{"LMI APP MORTE", "FRANQUIA RETROVISORES", "PRÊMIO CARRO RESERVA"} {
		assert.Equal(t, fields.NotFound, rec.Get(name).Text, name)
	}

	assert.Len(t, rec.Values, len(s.Vehicle), "every field is present, found or not")
}

func TestParseKeepsSpanOrderAndCount(t *testing.T) {
	p := NewParser(mustDefault(t))
	text := "Descrição do Item - 1 - Produto Auto Frota\nPlaca: ABC1234\n" +
		"Descrição do Item - 2 - Produto Auto Frota\nPlaca: DEF5678\n" +
		"Descrição do Item - 3 - Produto Auto Frota\nPlaca: GHI9012"

	spans, _ := segment.Split(text)
	doc := p.Parse(text, spans)

	require.Len(t, doc.Vehicles, len(spans))
	for i, plate := range []string{"ABC1234", "DEF5678", "GHI9012"} {
		assert.Equal(t, plate, doc.Vehicles[i].Get("PLACA").Text)
	}
}

func TestRecordGetUnknownField(t *testing.T) {
	var r Record
	assert.Equal(t, fields.NotFound, r.Get("NOPE").Text)
}

func TestParseSchemaValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no vehicle fields", "header:\n  fields: []\n"},
		{"bad group", "vehicle:\n  fields:\n    - name: A\n      group: other\n      candidates: [{fixed: x}]\n"},
		{"no candidates", "vehicle:\n  fields:\n    - name: A\n      group: premio\n"},
		{"two kinds", "vehicle:\n  fields:\n    - name: A\n      group: premio\n      candidates: [{fixed: x, regex: y}]\n"},
		{"bad regex", "vehicle:\n  fields:\n    - name: A\n      group: premio\n      candidates: [{regex: '('}]\n"},
		{"bad shape", "vehicle:\n  fields:\n    - name: A\n      group: premio\n      candidates: [{shape: phone}]\n"},
		{"duplicate", "vehicle:\n  fields:\n    - {name: A, group: premio, candidates: [{fixed: x}]}\n    - {name: A, group: premio, candidates: [{fixed: y}]}\n"},
		{"not yaml", "vehicle: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	def := `
header:
  fields:
    - name: APÓLICE
      candidates:
        - regex: 'Policy\s+No\.?\s*(\d+)'
vehicle:
  labels: ['Plate:', 'Model:']
  fields:
    - name: MODEL
      group: identificacao
      candidates:
        - label: 'Model:'
`
	require.NoError(t, os.WriteFile(path, []byte(def), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"MODEL"}, s.VehicleNames())

	doc := NewParser(s).Parse("Policy No. 42", []segment.Span{{Item: "1", Text: "Model: Onix Plate: ABC1234"}})
	assert.Equal(t, "42", doc.PolicyNumber())
	assert.Equal(t, "Onix", doc.Vehicles[0].Get("MODEL").Text, "section labels bound the value")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	emb, err := Load("")
	require.NoError(t, err)
	assert.Same(t, mustDefault(t), emb)
}
