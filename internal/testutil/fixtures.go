// Package testutil holds fixtures shared by package tests and the scenario
// harness: row types, their sample data and SQLite databases seeded with it.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Person is the row type of the people table.
type Person struct {
	ID     int    `db:"id"`
	Name   string `db:"name"`
	Age    int    `db:"age"`
	TeamID *int   `db:"team_id"`

	// Kids is in-memory only.
	Kids []Person `db:"-"`
}

// Team is the row type of the teams table.
type Team struct {
	ID   int    `db:"id"`
	Name string `db:"name"`
}

func team(id int) *int { return &id }

// People returns a fresh copy of the sample people.
func People() []Person {
	return []Person{
		{ID: 1, Name: "ann", Age: 40, TeamID: team(1), Kids: []Person{{ID: 2, Name: "bo", Age: 10}, {ID: 3, Name: "cy", Age: 12}}},
		{ID: 2, Name: "bo", Age: 10, TeamID: team(1)},
		{ID: 3, Name: "cy", Age: 12, TeamID: team(2)},
		{ID: 4, Name: "dan", Age: 4},
		{ID: 5, Name: "eve", Age: 33, TeamID: team(2), Kids: []Person{{ID: 6, Name: "fay", Age: 2}}},
	}
}

// Teams returns a fresh copy of the sample teams.
func Teams() []Team {
	return []Team{{ID: 1, Name: "red"}, {ID: 2, Name: "blue"}}
}

// Schema creates and seeds the people and teams tables with the sample
// data.
const Schema = `
CREATE TABLE people (
	id      INTEGER PRIMARY KEY,
	name    TEXT NOT NULL,
	age     INTEGER NOT NULL,
	team_id INTEGER
);
CREATE TABLE teams (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
INSERT INTO people (id, name, age, team_id) VALUES
	(1, 'ann', 40, 1),
	(2, 'bo',  10, 1),
	(3, 'cy',  12, 2),
	(4, 'dan', 4,  NULL),
	(5, 'eve', 33, 2);
INSERT INTO teams (id, name) VALUES
	(1, 'red'),
	(2, 'blue');
`

// OpenDB opens a SQLite database seeded with Schema in a temporary
// directory. It is closed when the test ends.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "fixtures.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("seed database: %v", err)
	}
	return db
}
