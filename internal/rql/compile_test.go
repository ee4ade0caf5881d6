package rql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportql/internal/domain"
	"reportql/internal/expr"
	"reportql/internal/macro"
	"reportql/internal/schema"
)

var fixed = time.Date(2024, 7, 15, 23, 30, 0, 0, time.UTC)

func testCompiler(t *testing.T) *Compiler {
	t.Helper()
	c := NewCompiler(schema.TestRegistry())
	c.Macros.Now = func() time.Time { return fixed }
	c.Expr.Now = func() time.Time { return fixed }
	return c
}

func TestCompile_AliasAndDefaultColumnNames(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile("SELECT campaign.id AS x FROM campaign", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign.id"}, plan.Fields)
	assert.Equal(t, []string{"x"}, plan.ColumnNames)

	plan, err = c.Compile("SELECT campaign.id FROM campaign", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign.id"}, plan.ColumnNames)
}

func TestCompile_PlanInvariants(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(`
		SELECT
			campaign.id,
			campaign.name AS name,
			campaign.status,
			metrics.clicks,
			segments.date,
		FROM campaign
	`, nil)
	require.NoError(t, err)

	n := len(plan.Fields)
	assert.Equal(t, 5, n)
	assert.Len(t, plan.ColumnNames, n)
	assert.Len(t, plan.ColumnTypes, n)
	assert.Len(t, plan.Customizers, n)
	require.NoError(t, plan.Validate())
}

func TestCompile_ColumnTypes(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(
		"SELECT campaign.id, campaign.status, campaign.network_settings, campaign.labels, segments.date FROM campaign", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.FieldType{Kind: domain.KindPrimitive, TypeName: "int64"}, plan.ColumnTypes[0])
	assert.Equal(t, domain.FieldType{Kind: domain.KindEnum, TypeName: "CampaignStatus"}, plan.ColumnTypes[1])
	assert.Equal(t, domain.FieldType{Kind: domain.KindStruct, TypeName: "NetworkSettings"}, plan.ColumnTypes[2])
	assert.Equal(t, domain.FieldType{Kind: domain.KindPrimitive, TypeName: "string", Repeated: true}, plan.ColumnTypes[3])
	assert.Equal(t, domain.FieldType{Kind: domain.KindPrimitive, TypeName: "date"}, plan.ColumnTypes[4])
}

func TestCompile_QueryTextStripsDecorations(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(`
		SELECT
			campaign.id AS id,                     # alias dropped
			campaign_audience_view.resource_name~1 AS view_id,
			campaign.name:$clean AS name,
		FROM campaign_audience_view
		WHERE metrics.impressions > 0
		FUNCTIONS clean(x) { x }
	`, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT campaign.id, campaign_audience_view.resource_name, campaign.name FROM campaign_audience_view WHERE metrics.impressions > 0",
		plan.QueryText)
}

func TestCompile_DuplicateColumn(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile("SELECT campaign.id, campaign.name AS campaign.id FROM campaign", nil)
	var dup *domain.DuplicateColumnError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "campaign.id", dup.Column)
}

func TestCompile_UnknownResource(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile("SELECT x.y FROM warehouse", nil)
	var unknown *domain.UnknownResourceError
	require.ErrorAs(t, err, &unknown)
}

func TestCompile_UnknownField(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile("SELECT campaign.budget FROM campaign", nil)
	var unknown *domain.UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "budget", unknown.Field)

	// Navigating past a primitive is a schema miss too.
	_, err = c.Compile("SELECT campaign.id.value FROM campaign", nil)
	require.ErrorAs(t, err, &unknown)
}

func TestCompile_RepeatedMidPathRejected(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile("SELECT campaign.frequency_caps.cap FROM campaign", nil)
	var syntaxErr *domain.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestCompile_NestedFieldCustomizer(t *testing.T) {
	c := testCompiler(t)

	// Repeated struct continued by a nested-field customizer: the result is
	// element-wise, so the repeated flag survives.
	plan, err := c.Compile("SELECT campaign.frequency_caps:cap FROM campaign", nil)
	require.NoError(t, err)
	assert.Equal(t,
		domain.FieldType{Kind: domain.KindPrimitive, TypeName: "int32", Repeated: true},
		plan.ColumnTypes[0])

	// Singular struct, singular nested segment: not repeated.
	plan, err = c.Compile("SELECT ad_group_ad.ad:text_ad.headline FROM ad_group_ad", nil)
	require.NoError(t, err)
	assert.Equal(t,
		domain.FieldType{Kind: domain.KindPrimitive, TypeName: "string"},
		plan.ColumnTypes[0])

	// Singular struct, repeated nested leaf: repeated comes from the
	// nested side of the walk.
	plan, err = c.Compile("SELECT ad_group_ad.ad:final_urls FROM ad_group_ad", nil)
	require.NoError(t, err)
	assert.True(t, plan.ColumnTypes[0].Repeated)
}

func TestCompile_FunctionCustomizerForcesString(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(
		"SELECT metrics.cost_micros:$toCost FROM campaign FUNCTIONS toCost(v) { v / 1000000 }", nil)
	require.NoError(t, err)
	assert.Equal(t,
		domain.FieldType{Kind: domain.KindPrimitive, TypeName: "string"},
		plan.ColumnTypes[0])

	fn := plan.Functions["toCost"]
	require.NotNil(t, fn)
	out, err := fn(int64(3_000_000))
	require.NoError(t, err)
	assert.Equal(t, float64(3), out)
}

func TestCompile_UndefinedFunctionReference(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile("SELECT campaign.name:$missing FROM campaign", nil)
	var syntaxErr *domain.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestCompile_Wildcard(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile("SELECT * FROM customer", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer.id", "customer.descriptive_name"}, plan.ColumnNames)
}

func TestCompile_WildcardSkipsExplicit(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile("SELECT customer.id, * FROM customer", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer.id", "customer.descriptive_name"}, plan.ColumnNames)
	require.NoError(t, plan.Validate())
}

func TestCompile_WildcardSkipsRepeatedSubtrees(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile("SELECT * FROM campaign", nil)
	require.NoError(t, err)

	for _, f := range plan.Fields {
		assert.NotContains(t, f, "frequency_caps")
	}
	// Singular struct interiors are expanded to their leaves.
	assert.Contains(t, plan.Fields, "campaign.network_settings.target_search_network")
	assert.Contains(t, plan.Fields, "segments.device")
}

func TestCompile_Macros(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(
		"SELECT campaign.id FROM campaign WHERE segments.date >= '{start_date}'",
		map[string]string{"start_date": ":YYYYMMDD-7"})
	require.NoError(t, err)
	assert.Contains(t, plan.QueryText, "'2024-07-08'")
}

func TestCompile_UnresolvedMacroAborts(t *testing.T) {
	c := testCompiler(t)

	_, err := c.Compile("SELECT campaign.id FROM campaign WHERE segments.date = '{day}'", nil)
	var unresolved *domain.UnresolvedMacroError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"day"}, unresolved.Names)
}

func TestCompile_Expressions(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(
		"SELECT campaign.id FROM campaign WHERE segments.date = '${today()-period('P1D')}'", nil)
	require.NoError(t, err)
	assert.Contains(t, plan.QueryText, "'2024-07-14'")
}

func TestCompile_ExpressionSeesMacroValue(t *testing.T) {
	c := testCompiler(t)

	plan, err := c.Compile(
		"SELECT campaign.id FROM campaign WHERE segments.date >= '${today()-lookback}'",
		map[string]string{"lookback": "7"})
	require.NoError(t, err)
	assert.Contains(t, plan.QueryText, "'2024-07-08'")
}

func TestCompilerIsolation_PlanIsSelfContained(t *testing.T) {
	mac := macro.New()
	mac.Now = func() time.Time { return fixed }
	ev := expr.NewEvaluator()
	ev.Now = func() time.Time { return fixed }
	c := &Compiler{Registry: schema.TestRegistry(), Macros: mac, Expr: ev}

	plan, err := c.Compile("SELECT campaign.id FROM campaign", nil)
	require.NoError(t, err)
	assert.Equal(t, "campaign", plan.Resource)
}
