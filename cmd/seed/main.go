package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/careslot/internal/booking"
	"github.com/careslot/careslot/internal/db"
	"github.com/careslot/careslot/internal/identity"
)

// Every seeded account gets this password so local testing is painless.
const seedPassword = "password123"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if _, err := seedUsers(context.Background(), pool, identity.RoleStaff, 3); err != nil {
		log.Fatalf("seed staff: %v", err)
	}
	patientIDs, err := seedUsers(context.Background(), pool, identity.RolePatient, 50)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	if err := seedAppointments(context.Background(), pool, patientIDs, 14); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role identity.Role, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d %s users", count, role)

	hash, err := identity.HashPassword(seedPassword)
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		username := gofakeit.Username()
		email := gofakeit.Email()

		var insertedID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (username) DO NOTHING
			RETURNING id
		`, id, username, email, hash, role).Scan(&insertedID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		ids = append(ids, insertedID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("%s users seeded", role)
	return ids, nil
}

// seedAppointments books roughly a third of each day's grid for the next
// `days` operating days, one active appointment per slot.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, owners []uuid.UUID, days int) error {
	log.Printf("seeding appointments across %d days", days)

	purposes := []string{
		"General checkup",
		"Follow-up visit",
		"Vaccination",
		"Blood test",
		"Consultation",
		"Physiotherapy session",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for d := 1; d <= days; d++ {
		date := booking.DateOnly(time.Now().AddDate(0, 0, d))

		for _, slot := range booking.GenerateSlots(date) {
			if gofakeit.Number(0, 2) != 0 {
				continue
			}

			owner := owners[gofakeit.Number(0, len(owners)-1)]
			purpose := purposes[gofakeit.Number(0, len(purposes)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', now(), now())
			`, uuid.New(), owner, gofakeit.Name(), gofakeit.Number(1, 120), date, slot.Value, purpose)
			if err != nil {
				return err
			}
			total++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("appointments seeded: %d", total)
	return nil
}
