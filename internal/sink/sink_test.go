package sink

import (
	"reportql/internal/domain"
	"reportql/internal/schema"
)

func testPlan() *domain.QueryPlan {
	return &domain.QueryPlan{
		QueryText:   "SELECT campaign.id, campaign.name, metrics.clicks, labels FROM campaign",
		Resource:    "campaign",
		Fields:      []string{"campaign.id", "campaign.name", "metrics.clicks", "labels"},
		ColumnNames: []string{"campaign_id", "name", "clicks", "labels"},
		Customizers: make([]domain.Customizer, 4),
		ColumnTypes: []domain.FieldType{
			{Kind: domain.KindPrimitive, TypeName: schema.TypeInt64},
			{Kind: domain.KindPrimitive, TypeName: schema.TypeString},
			{Kind: domain.KindPrimitive, TypeName: schema.TypeInt64},
			{Kind: domain.KindPrimitive, TypeName: schema.TypeString, Repeated: true},
		},
	}
}

func testRows() []domain.Row {
	return []domain.Row{
		{int64(101), "Brand", int64(5), []interface{}{"a", "b"}},
		{int64(102), "Generic", int64(7), nil},
	}
}
