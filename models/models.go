package models

import (
	"strings"
	"time"

	"github.com/bluesky-social/hierarchy/nestedset"

	"gorm.io/gorm"
)

// Issue rows form a forest: every top-level issue owns the scope of its subtasks.
type Issue struct {
	nestedset.Node

	// these fields are automatically managed by gorm (by convention)
	CreatedAt time.Time
	UpdatedAt time.Time

	Subject string `gorm:"column:subject;not null"`
}

func (Issue) TableName() string {
	return "issue"
}

// Project rows form one tree, siblings ordered by case-insensitive name.
type Project struct {
	nestedset.Node

	CreatedAt time.Time
	UpdatedAt time.Time

	Name string `gorm:"column:name;not null"`
}

func (Project) TableName() string {
	return "project"
}

// IssueTombstone is written for every issue removed through an issue tree configured with
// tombstones, including each subtask removed by a cascading delete.
type IssueTombstone struct {
	ID        uint64 `gorm:"column:id;primarykey"`
	CreatedAt time.Time

	IssueID  uint64  `gorm:"column:issue_id;index;not null"`
	ParentID *uint64 `gorm:"column:parent_id"`
	Subject  string  `gorm:"column:subject"`
}

func (IssueTombstone) TableName() string {
	return "issue_tombstone"
}

func recordTombstone(tx *gorm.DB, iss *Issue) error {
	return tx.Create(&IssueTombstone{
		IssueID:  iss.ID,
		ParentID: iss.ParentID,
		Subject:  iss.Subject,
	}).Error
}

func compareProjectNames(a, b *Project) int {
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

func lockTimeout(opts TreeOptions, def time.Duration) time.Duration {
	if opts.LockTimeout > 0 {
		return opts.LockTimeout
	}
	return def
}

type IssueTree = nestedset.Tree[Issue, *Issue]
type ProjectTree = nestedset.Tree[Project, *Project]

type TreeOptions struct {
	// shared lock coordinator; nil gives each tree its own
	Locker *nestedset.ScopeLocker

	// issue trees only: write an IssueTombstone for every deleted row
	Tombstones bool

	DeletePolicy nestedset.DeletePolicy

	// zero keeps the tree default
	LockTimeout time.Duration
}

func NewIssueTree(db *gorm.DB, opts TreeOptions) (*IssueTree, error) {
	cfg := nestedset.DefaultConfig[Issue]()
	cfg.LockTimeout = lockTimeout(opts, cfg.LockTimeout)
	cfg.Mode = nestedset.Forest
	cfg.Locker = opts.Locker
	if opts.DeletePolicy != nestedset.PolicyDefault {
		cfg.DeletePolicy = opts.DeletePolicy
	}
	if opts.Tombstones {
		cfg.BeforeDelete = recordTombstone
	}
	return nestedset.NewTree[Issue](db, cfg)
}

func NewProjectTree(db *gorm.DB, opts TreeOptions) (*ProjectTree, error) {
	cfg := nestedset.DefaultConfig[Project]()
	cfg.LockTimeout = lockTimeout(opts, cfg.LockTimeout)
	cfg.Mode = nestedset.SingleTree
	cfg.OrderColumn = "LOWER(name)"
	cfg.Compare = compareProjectNames
	cfg.Locker = opts.Locker
	if opts.DeletePolicy != nestedset.PolicyDefault {
		cfg.DeletePolicy = opts.DeletePolicy
	}
	return nestedset.NewTree[Project](db, cfg)
}

// AutoMigrate creates every table in this package.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Issue{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&Project{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&IssueTombstone{}); err != nil {
		return err
	}
	return nil
}
