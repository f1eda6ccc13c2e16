package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresRepository(dbURL string, logger logrus.FieldLogger) (*SQLRepository, error) {
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	logger.Info("connected to postgres, ensuring tables")

	// make sure the required tables exist
	// if not then create them
	usersTable := `
	  create table if not exists users (
		email text primary key,
		name text not null default '',
		is_reviewer boolean not null default false
	  );`

	resourcesTable := `
	  create table if not exists resources (
		resource_id text primary key,
		title text not null,
		description text not null,
		url text not null,
		category text not null,
		tags text not null,
		author_email text not null,
		created_at bigint not null,
		stars bigint not null default 0,
		starred_by text not null,
		reviewed boolean not null default false,
		version bigint not null default 0
	  );`

	rankIndex := `
	  create index if not exists idx_resources_rank
	  on resources (stars desc, created_at desc, resource_id asc);`
	authorIndex := `
	  create index if not exists idx_resources_author
	  on resources (author_email, created_at desc);`

	for _, stmt := range []string{usersTable, resourcesTable, rankIndex, authorIndex} {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLRepository{db: db, log: logger.WithField("component", "repository")}, nil
}
