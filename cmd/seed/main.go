package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-appointment-booking/internal/booking"
	"github.com/hackgods/opd-appointment-booking/internal/config"
	"github.com/hackgods/opd-appointment-booking/internal/db"
	"github.com/hackgods/opd-appointment-booking/internal/logger"
)

const (
	doctorCount  = 40
	patientCount = 5000
	slotDays     = 7
)

// clinic hours each doctor gets a slot for, per day
var slotHours = []struct{ start, end string }{
	{"09:00", "10:00"},
	{"10:00", "11:00"},
	{"11:00", "12:00"},
	{"14:00", "15:00"},
	{"15:00", "16:00"},
}

var cities = []struct{ city, state string }{
	{"Mumbai", "Maharashtra"},
	{"Pune", "Maharashtra"},
	{"Bengaluru", "Karnataka"},
	{"Chennai", "Tamil Nadu"},
	{"Hyderabad", "Telangana"},
	{"New Delhi", "Delhi"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("logger setup error")
	}
	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConn, MinConns: cfg.PostgresMinConn})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	_ = gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, log, doctorCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedSlots(context.Background(), pool, log, doctors, time.Now().In(cfg.Location())); err != nil {
		log.Fatal().Err(err).Msg("seed slots")
	}
	if err := seedPatients(context.Background(), pool, log, patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, count int) ([]string, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := booking.Specialties()
	qualifications := []string{"MBBS", "MD", "MS", "DNB", "DM", "MCh"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.NewString()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		quals := []string{"MBBS", qualifications[gofakeit.Number(1, len(qualifications)-1)]}

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, qualifications, registration_number,
			                       consultation_fee, hospital_id, department_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			id,
			"Dr. "+gofakeit.Name(),
			string(spec),
			quals,
			fmt.Sprintf("MH-%05d", gofakeit.Number(10000, 99999)),
			gofakeit.Number(3, 15)*100,
			"h1",
			fmt.Sprintf("dept%d", gofakeit.Number(1, 5)),
			gofakeit.Number(1, 10) > 1,
		)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, doctors []string, base time.Time) error {
	log.Info().Int("doctors", len(doctors)).Int("days", slotDays).Msg("seeding slots")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	first := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location()).AddDate(0, 0, 1)
	n := 0
	for _, doctorID := range doctors {
		for d := 0; d < slotDays; d++ {
			date := first.AddDate(0, 0, d).Format("2006-01-02")
			for _, h := range slotHours {
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, provider_id, slot_date, start_time, end_time, max_patients)
					VALUES ($1, $2, $3, $4, $5, $6)
				`, uuid.NewString(), doctorID, date, h.start, h.end, gofakeit.Number(3, 8))
				if err != nil {
					return err
				}
				n++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Int("slots", n).Msg("slots seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			loc := cities[gofakeit.Number(0, len(cities)-1)]
			address, err := json.Marshal(booking.Address{
				Line1:   gofakeit.Street(),
				City:    loc.city,
				State:   loc.state,
				Pincode: gofakeit.DigitN(6),
			})
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO patients (id, name, mobile, email, date_of_birth, gender, address)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`,
				uuid.NewString(),
				gofakeit.Name(),
				"9"+gofakeit.DigitN(9),
				gofakeit.Email(),
				gofakeit.DateRange(time.Now().AddDate(-80, 0, 0), time.Now().AddDate(-1, 0, 0)).Format("2006-01-02"),
				gofakeit.RandomString([]string{"male", "female", "other"}),
				address,
			)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
