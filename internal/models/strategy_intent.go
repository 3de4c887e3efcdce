package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// StrategyIntent is one proposed order within a run, written by the planner.
type StrategyIntent struct {
	IntentID string  `gorm:"column:intent_id;type:uuid;primaryKey;default:gen_random_uuid()"`
	RunID    string  `gorm:"column:run_id;type:uuid;not null;index"`
	Executor string  `gorm:"column:executor;type:text;not null"`
	Symbol   string  `gorm:"column:symbol;type:varchar(32);not null"`
	Strategy *string `gorm:"column:strategy;type:text"`
	Priority int     `gorm:"column:priority;not null;default:0"`

	TS          time.Time      `gorm:"column:ts;type:timestamptz;not null;default:now()"`
	SourceFacts datatypes.JSON `gorm:"column:source_facts;type:jsonb"`

	DispatchedTS     *time.Time `gorm:"column:dispatched_ts;type:timestamptz"`
	DispatchedOK     *bool      `gorm:"column:dispatched_ok"`
	DispatchedDetail *string    `gorm:"column:dispatched_detail;type:text"`
}

func (StrategyIntent) TableName() string {
	return "strategy_intents"
}

// PlanningContext returns the decoded source_facts.planning_context value.
// Numbers are kept as json.Number. A missing or undecodable payload yields nil.
func (i StrategyIntent) PlanningContext() any {
	if len(i.SourceFacts) == 0 {
		return nil
	}
	var facts map[string]json.RawMessage
	if err := json.Unmarshal(i.SourceFacts, &facts); err != nil {
		return nil
	}
	raw, ok := facts["planning_context"]
	if !ok {
		return nil
	}
	return DecodeJSON(raw)
}
