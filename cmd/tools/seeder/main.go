package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/noah-isme/backend-streamshop/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedProducts(db)
	seedPlans(db)
	seedAdmin(db)

	log.Println("Seeding complete.")
}

type product struct {
	Slug        string
	Name        string
	Description string
	Price       int64
	ImageURL    string
	Category    string
}

func seedProducts(db *sql.DB) {
	products := []product{
		{"fire-stick-hd", "Fire Stick HD", "1080p streaming stick, preconfigured and ready to plug in.", 5500, "/img/fire-stick-hd.jpg", "devices"},
		{"fire-stick-4k", "Fire Stick 4K", "4K UHD streaming stick with Wi-Fi 6 support.", 8500, "/img/fire-stick-4k.jpg", "devices"},
		{"fire-stick-4k-max", "Fire Stick 4K Max", "Fastest stick in the lineup, 16GB storage, Wi-Fi 6E.", 10500, "/img/fire-stick-4k-max.jpg", "devices"},
		{"onn-4k-box", "Onn 4K Streaming Box", "Android TV box with Google certification.", 7000, "/img/onn-4k-box.jpg", "devices"},
		{"hdmi-extender", "HDMI Extender Cable", "Short HDMI extender for crowded TV ports.", 900, "/img/hdmi-extender.jpg", "accessories"},
		{"remote-cover", "Silicone Remote Cover", "Protective sleeve for streaming stick remotes.", 700, "/img/remote-cover.jpg", "accessories"},
	}

	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (slug, name, description, base_price, image_url, category)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				base_price = EXCLUDED.base_price,
				image_url = EXCLUDED.image_url,
				category = EXCLUDED.category,
				updated_at = now()
		`, p.Slug, p.Name, p.Description, p.Price, p.ImageURL, p.Category)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.Slug, err)
		}
	}
	log.Printf("Seeded %d products", len(products))
}

type plan struct {
	Slug           string
	Name           string
	DurationMonths int
	SortOrder      int
	// Prices[d-1] is the subscription price for d devices.
	Prices [5]int64
}

func seedPlans(db *sql.DB) {
	plans := []plan{
		{"1-month", "1 Month", 1, 1, [5]int64{2000, 3500, 4800, 6000, 7000}},
		{"3-months", "3 Months", 3, 2, [5]int64{5000, 9000, 12500, 15500, 18000}},
		{"6-months", "6 Months", 6, 3, [5]int64{9000, 16500, 23000, 28500, 33000}},
		{"12-months", "12 Months", 12, 4, [5]int64{16000, 29500, 41500, 52000, 60000}},
	}

	for _, pl := range plans {
		var planID string
		err := db.QueryRow(`
			INSERT INTO plans (slug, name, duration_months, sort_order)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				duration_months = EXCLUDED.duration_months,
				sort_order = EXCLUDED.sort_order
			RETURNING id
		`, pl.Slug, pl.Name, pl.DurationMonths, pl.SortOrder).Scan(&planID)
		if err != nil {
			log.Fatalf("Failed to seed plan %s: %v", pl.Slug, err)
		}

		for devices := 1; devices <= 5; devices++ {
			code := productCode(pl.DurationMonths, devices)
			_, err := db.Exec(`
				INSERT INTO plan_prices (plan_id, devices, price, product_code)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (plan_id, devices) DO UPDATE SET
					price = EXCLUDED.price,
					product_code = EXCLUDED.product_code
			`, planID, devices, pl.Prices[devices-1], code)
			if err != nil {
				log.Fatalf("Failed to seed price for plan %s devices %d: %v", pl.Slug, devices, err)
			}
		}
	}
	log.Printf("Seeded %d plans with full device matrices", len(plans))
}

func productCode(months, devices int) string {
	return fmt.Sprintf("IPTV-%dM-%dD", months, devices)
}

func seedAdmin(db *sql.DB) {
	email := os.Getenv("SEED_ADMIN_EMAIL")
	if email == "" {
		email = "admin@streamshop.dev"
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "changeme-now"
		log.Println("SEED_ADMIN_PASSWORD not set, using the default development password")
	}

	hash, err := app.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (email, password_hash, roles)
		VALUES ($1, $2, ARRAY['customer', 'admin'])
		ON CONFLICT (email) DO NOTHING
	`, email, hash)
	if err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	log.Printf("Seeded admin user %s", email)
}
