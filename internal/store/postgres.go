package store

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"calc/internal/errors"
	"calc/internal/graph"
	"calc/pkg/exception"
)

type strategyRow struct {
	Contract   string         `gorm:"type:varchar(128);primaryKey"`
	Owner      string         `gorm:"type:varchar(128);not null;index"`
	Manager    string         `gorm:"type:varchar(128);not null"`
	Label      string         `gorm:"type:varchar(100)"`
	Affiliates datatypes.JSON `gorm:"type:jsonb"`
	Denoms     datatypes.JSON `gorm:"type:jsonb"`
	Escrowed   datatypes.JSON `gorm:"type:jsonb"`
	Statistics datatypes.JSON `gorm:"type:jsonb;not null"`
	Pending    datatypes.JSON `gorm:"type:jsonb"`
	Version    uint64         `gorm:"not null;default:0"`
	UpdatedAt  time.Time      `gorm:"type:timestamptz"`
}

func (strategyRow) TableName() string { return "strategies" }

type nodeRow struct {
	Contract string         `gorm:"type:varchar(128);primaryKey"`
	Index    uint16         `gorm:"column:node_index;primaryKey"`
	Kind     string         `gorm:"type:varchar(20);not null"`
	Label    string         `gorm:"type:varchar(50)"`
	Content  datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (nodeRow) TableName() string { return "strategy_nodes" }

// Postgres keeps one row per strategy and one row per node.
type Postgres struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate creates or updates the tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.db.WithContext(ctx).AutoMigrate(&strategyRow{}, &nodeRow{})
}

func (p *Postgres) Load(ctx context.Context, contract string) (Record, error) {
	var row strategyRow
	err := p.db.WithContext(ctx).Where("contract = ?", contract).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, errors.Wrapf(exception.ErrNotFound, "strategy %s", contract)
	}
	if err != nil {
		return Record{}, errors.Wrapf(err, "load strategy %s", contract)
	}

	var nodes []nodeRow
	if err := p.db.WithContext(ctx).Where("contract = ?", contract).Order("node_index").Find(&nodes).Error; err != nil {
		return Record{}, errors.Wrapf(err, "load nodes of %s", contract)
	}
	return fromRows(row, nodes)
}

func (p *Postgres) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.Contract == "" {
		return Record{}, ErrEmptyContract
	}
	expected := rec.Version
	rec.Version++
	rec.UpdatedAt = p.now().UTC()

	row, nodes, err := toRows(rec)
	if err != nil {
		return Record{}, err
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expected == 0 {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errors.Wrapf(ErrVersionConflict, "strategy %s already exists", rec.Contract)
			}
		} else {
			res := tx.Model(&strategyRow{}).
				Where("contract = ? AND version = ?", rec.Contract, expected).
				Select("*").
				Updates(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errors.Wrapf(ErrVersionConflict, "strategy %s moved past %d", rec.Contract, expected)
			}
		}

		if err := tx.Where("contract = ?", rec.Contract).Delete(&nodeRow{}).Error; err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		return tx.Create(&nodes).Error
	})
	if err != nil {
		return Record{}, errors.Wrapf(err, "save strategy %s", rec.Contract)
	}
	return rec, nil
}

func (p *Postgres) Delete(ctx context.Context, contract string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract = ?", contract).Delete(&nodeRow{}).Error; err != nil {
			return err
		}
		return tx.Where("contract = ?", contract).Delete(&strategyRow{}).Error
	})
}

func (p *Postgres) Contracts(ctx context.Context) ([]string, error) {
	var out []string
	err := p.db.WithContext(ctx).Model(&strategyRow{}).Order("contract").Pluck("contract", &out).Error
	return out, err
}

func encodeJSON(v any) (datatypes.JSON, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func decodeJSON(data datatypes.JSON, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return sonic.Unmarshal(data, v)
}

func toRows(rec Record) (strategyRow, []nodeRow, error) {
	s := rec.Strategy
	row := strategyRow{
		Contract:  rec.Contract,
		Owner:     s.Owner,
		Manager:   s.Manager,
		Label:     s.Label,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}

	var err error
	for _, field := range []struct {
		dst *datatypes.JSON
		v   any
	}{
		{&row.Affiliates, s.Affiliates},
		{&row.Denoms, s.Denoms},
		{&row.Escrowed, s.Escrowed},
		{&row.Statistics, rec.Statistics},
		{&row.Pending, rec.Pending},
	} {
		if *field.dst, err = encodeJSON(field.v); err != nil {
			return strategyRow{}, nil, errors.Wrapf(err, "encode strategy %s", rec.Contract)
		}
	}

	nodes := make([]nodeRow, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		content, err := encodeJSON(n)
		if err != nil {
			return strategyRow{}, nil, errors.Wrapf(err, "encode node %d", n.Index)
		}
		nodes = append(nodes, nodeRow{
			Contract: rec.Contract,
			Index:    n.Index,
			Kind:     n.Kind.String(),
			Label:    n.Label(),
			Content:  content,
		})
	}
	return row, nodes, nil
}

func fromRows(row strategyRow, nodes []nodeRow) (Record, error) {
	rec := Record{
		Contract:  row.Contract,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
		Strategy: graph.Strategy{
			Owner:    row.Owner,
			Manager:  row.Manager,
			Contract: row.Contract,
			Label:    row.Label,
		},
	}

	for _, field := range []struct {
		src datatypes.JSON
		v   any
	}{
		{row.Affiliates, &rec.Strategy.Affiliates},
		{row.Denoms, &rec.Strategy.Denoms},
		{row.Escrowed, &rec.Strategy.Escrowed},
		{row.Statistics, &rec.Statistics},
		{row.Pending, &rec.Pending},
	} {
		if err := decodeJSON(field.src, field.v); err != nil {
			return Record{}, errors.Wrapf(err, "decode strategy %s", row.Contract)
		}
	}

	rec.Strategy.Nodes = make([]graph.Node, 0, len(nodes))
	for _, n := range nodes {
		var node graph.Node
		if err := decodeJSON(n.Content, &node); err != nil {
			return Record{}, errors.Wrapf(err, "decode node %d of %s", n.Index, row.Contract)
		}
		rec.Strategy.Nodes = append(rec.Strategy.Nodes, node)
	}
	return rec, nil
}
