// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP TABLE user_site_assignments;
		DROP TABLE users;
		DROP INDEX bookings_otp_code_idx;
		DROP INDEX bookings_site_id_idx;
		DROP INDEX bookings_status_idx;
		DROP TABLE bookings;
		DROP TABLE membership_payments;
		DROP INDEX memberships_active_number_idx;
		DROP TABLE memberships;
		DROP INDEX vehicles_active_plate_idx;
		DROP TABLE vehicles;
		DROP INDEX customers_active_phone_idx;
		DROP TABLE customers;
		DROP INDEX pallet_occupants_booking_number_idx;
		DROP TABLE pallet_occupants;
		DROP TABLE pallets;
		DROP TABLE machines;
		DROP TABLE sites;
	`,
	"001_initial.up.sql": `
		---------- site level

		CREATE TABLE sites (
			id               BIGSERIAL  NOT NULL PRIMARY KEY,
			code             TEXT       NOT NULL UNIQUE,
			name             TEXT       NOT NULL,
			address_street   TEXT       NOT NULL DEFAULT '',
			address_city     TEXT       NOT NULL DEFAULT '',
			address_state    TEXT       NOT NULL DEFAULT '',
			address_pincode  TEXT       NOT NULL DEFAULT '',
			latitude         DOUBLE PRECISION  DEFAULT NULL,
			longitude        DOUBLE PRECISION  DEFAULT NULL,
			operating_hours  TEXT       NOT NULL DEFAULT '',
			pricing          TEXT       NOT NULL DEFAULT '',
			total_machines   BIGINT     NOT NULL DEFAULT 0,
			total_capacity   BIGINT     NOT NULL DEFAULT 0,
			status           TEXT       NOT NULL DEFAULT 'active',
			created_by       TEXT       NOT NULL DEFAULT '',
			created_at       TIMESTAMP  NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMP  NOT NULL DEFAULT NOW()
		);

		---------- machine level

		CREATE TABLE machines (
			id                 BIGSERIAL  NOT NULL PRIMARY KEY,
			site_id            BIGINT     NOT NULL REFERENCES sites ON DELETE CASCADE,
			code               TEXT       NOT NULL,
			machine_type       TEXT       NOT NULL,
			vehicle_type       TEXT       NOT NULL,
			status             TEXT       NOT NULL DEFAULT 'offline',
			capacity_total     BIGINT     NOT NULL,
			supported_vehicle_types  TEXT  NOT NULL DEFAULT '[]',
			max_length_mm      BIGINT     DEFAULT NULL,
			max_width_mm       BIGINT     DEFAULT NULL,
			max_height_mm      BIGINT     DEFAULT NULL,
			max_weight_kg      BIGINT     DEFAULT NULL,
			operating_hours    TEXT       NOT NULL DEFAULT '',
			pricing            TEXT       NOT NULL DEFAULT '',
			last_heartbeat_at  TIMESTAMP  DEFAULT NULL, -- null if the controller never reported in
			firmware_version   TEXT       NOT NULL DEFAULT '',
			connection_status  TEXT       NOT NULL DEFAULT 'disconnected',
			created_by         TEXT       NOT NULL DEFAULT '',
			created_at         TIMESTAMP  NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMP  NOT NULL DEFAULT NOW(),
			UNIQUE (site_id, code)
		);

		CREATE TABLE pallets (
			id                 BIGSERIAL  NOT NULL PRIMARY KEY,
			machine_id         BIGINT     NOT NULL REFERENCES machines ON DELETE CASCADE,
			number             BIGINT     NOT NULL,
			custom_name        TEXT       NOT NULL DEFAULT '',
			status             TEXT       NOT NULL DEFAULT 'available',
			vehicle_capacity   BIGINT     NOT NULL,
			current_occupancy  BIGINT     NOT NULL DEFAULT 0,
			occupied_since     TIMESTAMP  DEFAULT NULL,
			last_maintenance   TIMESTAMP  DEFAULT NULL,
			maintenance_notes  TEXT       NOT NULL DEFAULT '',
			UNIQUE (machine_id, number)
		);

		CREATE TABLE pallet_occupants (
			id              BIGSERIAL  NOT NULL PRIMARY KEY,
			pallet_id       BIGINT     NOT NULL REFERENCES pallets ON DELETE CASCADE,
			booking_number  TEXT       NOT NULL,
			vehicle_number  TEXT       NOT NULL,
			position        BIGINT     NOT NULL,
			occupied_since  TIMESTAMP  NOT NULL DEFAULT NOW(),
			UNIQUE (pallet_id, position)
		);
		CREATE INDEX pallet_occupants_booking_number_idx ON pallet_occupants (booking_number);

		---------- customer level

		CREATE TABLE customers (
			id               BIGSERIAL  NOT NULL PRIMARY KEY,
			code             TEXT       NOT NULL UNIQUE,
			first_name       TEXT       NOT NULL,
			last_name        TEXT       NOT NULL DEFAULT '',
			phone            TEXT       NOT NULL,
			email            TEXT       NOT NULL DEFAULT '',
			status           TEXT       NOT NULL DEFAULT 'active',
			total_bookings   BIGINT     NOT NULL DEFAULT 0,
			total_amount     DOUBLE PRECISION  NOT NULL DEFAULT 0,
			last_booking_at  TIMESTAMP  DEFAULT NULL,
			deleted_at       TIMESTAMP  DEFAULT NULL,
			delete_reason    TEXT       NOT NULL DEFAULT '',
			created_by       TEXT       NOT NULL DEFAULT '',
			created_at       TIMESTAMP  NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMP  NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX customers_active_phone_idx ON customers (phone) WHERE status = 'active';

		CREATE TABLE vehicles (
			uuid            TEXT       NOT NULL PRIMARY KEY,
			customer_id     BIGINT     NOT NULL REFERENCES customers ON DELETE CASCADE,
			plate           TEXT       NOT NULL,
			vehicle_type    TEXT       NOT NULL,
			make            TEXT       NOT NULL DEFAULT '',
			model           TEXT       NOT NULL DEFAULT '',
			color           TEXT       NOT NULL DEFAULT '',
			is_active       BOOLEAN    NOT NULL DEFAULT TRUE,
			added_by        TEXT       NOT NULL DEFAULT '',
			added_at        TIMESTAMP  NOT NULL DEFAULT NOW(),
			deactivated_at  TIMESTAMP  DEFAULT NULL
		);
		CREATE UNIQUE INDEX vehicles_active_plate_idx ON vehicles (customer_id, plate) WHERE is_active;

		CREATE TABLE memberships (
			id                     BIGSERIAL  NOT NULL PRIMARY KEY,
			customer_id            BIGINT     NOT NULL UNIQUE REFERENCES customers ON DELETE CASCADE,
			membership_number      TEXT       NOT NULL,
			pin                    TEXT       NOT NULL,
			membership_type        TEXT       NOT NULL,
			covered_vehicle_types  TEXT       NOT NULL DEFAULT '[]',
			issued_at              TIMESTAMP  NOT NULL,
			expires_at             TIMESTAMP  NOT NULL,
			validity_months        BIGINT     NOT NULL,
			is_active              BOOLEAN    NOT NULL DEFAULT TRUE
		);
		CREATE UNIQUE INDEX memberships_active_number_idx ON memberships (membership_number) WHERE is_active;

		CREATE TABLE membership_payments (
			id                     BIGSERIAL  NOT NULL PRIMARY KEY,
			customer_id            BIGINT     NOT NULL, -- not a foreign key, the ledger outlives customers
			customer_name          TEXT       NOT NULL,
			customer_phone         TEXT       NOT NULL,
			membership_number      TEXT       NOT NULL,
			membership_type        TEXT       NOT NULL,
			amount                 DOUBLE PRECISION  NOT NULL,
			method                 TEXT       NOT NULL,
			transaction_ref        TEXT       NOT NULL DEFAULT '',
			start_date             TIMESTAMP  NOT NULL,
			expiry_date            TIMESTAMP  NOT NULL,
			validity_months        BIGINT     NOT NULL,
			covered_vehicle_types  TEXT       NOT NULL DEFAULT '[]',
			status                 TEXT       NOT NULL DEFAULT 'completed',
			created_by             TEXT       NOT NULL DEFAULT '',
			created_at             TIMESTAMP  NOT NULL DEFAULT NOW()
		);

		---------- booking level

		CREATE TABLE bookings (
			id                    BIGSERIAL  NOT NULL PRIMARY KEY,
			number                TEXT       NOT NULL UNIQUE,
			site_id               BIGINT     NOT NULL, -- not a foreign key, booking history survives site deletion
			customer_id           BIGINT     DEFAULT NULL,
			customer_name         TEXT       NOT NULL,
			phone_number          TEXT       NOT NULL,
			vehicle_number        TEXT       NOT NULL,
			vehicle_type          TEXT       NOT NULL,
			machine_number        TEXT       NOT NULL,
			pallet_number         BIGINT     NOT NULL,
			status                TEXT       NOT NULL DEFAULT 'active',
			start_time            TIMESTAMP  NOT NULL,
			end_time              TIMESTAMP  DEFAULT NULL,
			otp_code              TEXT       NOT NULL,
			otp_issued_at         TIMESTAMP  NOT NULL,
			otp_expires_at        TIMESTAMP  NOT NULL,
			otp_used              BOOLEAN    NOT NULL DEFAULT FALSE,
			otp_used_at           TIMESTAMP  DEFAULT NULL,
			payment_amount        DOUBLE PRECISION  DEFAULT NULL,
			payment_method        TEXT       NOT NULL DEFAULT '',
			payment_status        TEXT       NOT NULL DEFAULT 'pending',
			transaction_ref       TEXT       NOT NULL DEFAULT '',
			paid_at               TIMESTAMP  DEFAULT NULL,
			membership_number     TEXT       NOT NULL DEFAULT '',
			base_rate             DOUBLE PRECISION  NOT NULL DEFAULT 0,
			additional_charges    DOUBLE PRECISION  NOT NULL DEFAULT 0,
			discount              DOUBLE PRECISION  NOT NULL DEFAULT 0,
			tax                   DOUBLE PRECISION  NOT NULL DEFAULT 0,
			notes                 TEXT       NOT NULL DEFAULT '',
			special_instructions  TEXT       NOT NULL DEFAULT '',
			created_by            TEXT       NOT NULL DEFAULT '',
			updated_by            TEXT       NOT NULL DEFAULT '',
			completed_by          TEXT       NOT NULL DEFAULT '',
			created_at            TIMESTAMP  NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMP  NOT NULL DEFAULT NOW()
		);
		CREATE INDEX bookings_status_idx ON bookings (status);
		CREATE INDEX bookings_site_id_idx ON bookings (site_id);
		CREATE INDEX bookings_otp_code_idx ON bookings (otp_code) WHERE NOT otp_used;

		---------- user level

		CREATE TABLE users (
			id                     BIGSERIAL  NOT NULL PRIMARY KEY,
			uuid                   TEXT       NOT NULL UNIQUE,
			operator_id            TEXT       NOT NULL,
			name                   TEXT       NOT NULL,
			email                  TEXT       NOT NULL DEFAULT '',
			role                   TEXT       NOT NULL DEFAULT 'operator',
			status                 TEXT       NOT NULL DEFAULT 'active',
			password_hash          TEXT       NOT NULL DEFAULT '',
			refresh_token_id       TEXT       NOT NULL DEFAULT '',
			failed_login_attempts  BIGINT     NOT NULL DEFAULT 0,
			locked_until           TIMESTAMP  DEFAULT NULL,
			primary_site_id        BIGINT     DEFAULT NULL REFERENCES sites ON DELETE SET NULL,
			created_at             TIMESTAMP  NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMP  NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX users_active_operator_id_idx ON users (operator_id) WHERE status = 'active';

		CREATE TABLE user_site_assignments (
			id           BIGSERIAL  NOT NULL PRIMARY KEY,
			user_id      BIGINT     NOT NULL REFERENCES users ON DELETE CASCADE,
			site_id      BIGINT     NOT NULL REFERENCES sites ON DELETE CASCADE,
			site_role    TEXT       NOT NULL,
			permissions  TEXT       NOT NULL DEFAULT '[]',
			assigned_by  TEXT       NOT NULL DEFAULT '',
			assigned_at  TIMESTAMP  NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, site_id)
		);
	`,
	"002_machine_service_events.down.sql": `
		DROP TABLE machine_service_events;
	`,
	"002_machine_service_events.up.sql": `
		CREATE TABLE machine_service_events (
			id           BIGSERIAL  NOT NULL PRIMARY KEY,
			machine_id   BIGINT     NOT NULL REFERENCES machines ON DELETE CASCADE,
			event        TEXT       NOT NULL,
			notes        TEXT       NOT NULL DEFAULT '',
			recorded_by  TEXT       NOT NULL DEFAULT '',
			recorded_at  TIMESTAMP  NOT NULL DEFAULT NOW()
		);
	`,
}
