// Command migrate applies or rolls back the database schema
package main

import (
	"flag"

	"github.com/amirphl/nexus-communicator/config"
	"github.com/amirphl/nexus-communicator/migrations"
	"github.com/sirupsen/logrus"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to roll back with -down (0 = all)")
	down := flag.Bool("down", false, "roll back instead of applying")
	version := flag.Bool("version", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	config.ConfigureLogger(cfg.Logging)

	dsn := cfg.Database.DSN()

	switch {
	case *version:
		v, dirty, err := migrations.Version(dsn)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to read schema version")
		}
		logrus.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("Schema version")
	case *down:
		if err := migrations.Down(dsn, *steps); err != nil {
			logrus.WithError(err).Fatal("Rollback failed")
		}
		logrus.WithField("steps", *steps).Info("Rollback complete")
	default:
		if err := migrations.Up(dsn); err != nil {
			logrus.WithError(err).Fatal("Migration failed")
		}
	}
}
