package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/debrismap"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// VectorKind selects the table vectors are stored in
type VectorKind string

const (
	PredictionVectors          VectorKind = "prediction_vectors"
	SceneClassificationVectors VectorKind = "scene_classification_vectors"
)

// RasterRecord describes a stored raster
type RasterRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;not null"`
	DType     string `gorm:"column:dtype"`
	CRS       int
	Width     int
	Height    int
	Bands     string
	Footprint string `gorm:"type:geometry"`
	CreatedAt time.Time
}

func (RasterRecord) TableName() string {
	return "rasters"
}

// ModelRecord is a model that produced predictions
type ModelRecord struct {
	ID        uint   `gorm:"primaryKey"`
	ModelID   string `gorm:"uniqueIndex;not null"`
	URL       string
	CreatedAt time.Time
}

func (ModelRecord) TableName() string {
	return "models"
}

// VectorRecord is a vector extracted from a stored raster, by a model for
// prediction vectors. A raster never holds the same geometry with the same
// value twice for the same model.
type VectorRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RasterKey  string `gorm:"not null"`
	ModelID    string
	PixelValue int64
	Geom       string `gorm:"type:geometry"`
	CRS        int
}

// DB writes raster metadata and vectors. On postgres geometries are stored
// as PostGIS geometries, elsewhere as hex encoded WKB.
type DB struct {
	db      *gorm.DB
	postgis bool
	logger  *zap.Logger
}

type DBOption func(d *DB)

func DBLogger(l *zap.Logger) DBOption {
	return func(d *DB) {
		d.logger = l
	}
}

// PostgresDSN builds a DSN from DB_USER, DB_PW, DB_NAME, DB_HOST and DB_PORT
func PostgresDSN() (string, error) {
	vals := map[string]string{}
	for _, k := range []string{"DB_USER", "DB_PW", "DB_NAME", "DB_HOST", "DB_PORT"} {
		v, ok := os.LookupEnv(k)
		if !ok {
			return "", fmt.Errorf("missing environment variable %s", k)
		}
		vals[k] = v
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		vals["DB_HOST"], vals["DB_USER"], vals["DB_PW"], vals["DB_NAME"], vals["DB_PORT"]), nil
}

// OpenPostgres connects with PostgresDSN
func OpenPostgres(opts ...DBOption) (*DB, error) {
	dsn, err := PostgresDSN()
	if err != nil {
		return nil, err
	}
	return Open(postgres.Open(dsn), opts...)
}

// Open connects and creates the tables if needed
func Open(dialector gorm.Dialector, opts ...DBOption) (*DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d := &DB{db: gdb, postgis: dialector.Name() == "postgres", logger: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	if d.postgis {
		if err := gdb.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
			return nil, fmt.Errorf("enable postgis: %w", err)
		}
	}
	if err := gdb.AutoMigrate(&RasterRecord{}, &ModelRecord{}); err != nil {
		return nil, fmt.Errorf("migrate rasters: %w", err)
	}
	for _, k := range []VectorKind{PredictionVectors, SceneClassificationVectors} {
		if err := gdb.Table(string(k)).AutoMigrate(&VectorRecord{}); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", k, err)
		}
		// index names are global to the schema, so each table gets its own
		idx := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s_dedup ON %s (raster_key, model_id, pixel_value, geom)", k, k)
		if err := gdb.Exec(idx).Error; err != nil {
			return nil, fmt.Errorf("index %s: %w", k, err)
		}
	}
	return d, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) geometry(g orb.Geometry, srid int) (interface{}, error) {
	raw, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("wkb: %w", err)
	}
	h := hex.EncodeToString(raw)
	if !d.postgis {
		return h, nil
	}
	return clause.Expr{SQL: "ST_SetSRID(ST_GeomFromWKB(decode(?, 'hex')), ?)", Vars: []interface{}{h, srid}}, nil
}

// SaveRaster records a raster stored under key. It returns false if key was
// already recorded.
func (d *DB) SaveRaster(ctx context.Context, key string, r debrismap.Raster) (bool, error) {
	geom, err := d.geometry(r.Geometry, r.CRS)
	if err != nil {
		return false, err
	}
	bands := make([]string, len(r.Bands))
	for i, b := range r.Bands {
		bands[i] = strconv.Itoa(b)
	}
	res := d.db.WithContext(ctx).Model(&RasterRecord{}).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]interface{}{
			"key":        key,
			"dtype":      debrismap.DataTypeName(r.DataType()),
			"crs":        r.CRS,
			"width":      r.Size.Width,
			"height":     r.Size.Height,
			"bands":      strings.Join(bands, ","),
			"footprint":  geom,
			"created_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("insert raster %s: %w", key, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SaveModel records a model under its identifier. It returns false if
// modelID was already recorded.
func (d *DB) SaveModel(ctx context.Context, modelID, url string) (bool, error) {
	if modelID == "" {
		return false, errors.New("empty model id")
	}
	res := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ModelRecord{ModelID: modelID, URL: url})
	if res.Error != nil {
		return false, fmt.Errorf("insert model %s: %w", modelID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SaveVectors drains vr into the kind table, attached to rasterKey and to
// modelID, which is empty for scene classification vectors. Duplicates are
// skipped. It returns how many vectors were inserted.
func (d *DB) SaveVectors(ctx context.Context, kind VectorKind, rasterKey, modelID string,
	vr debrismap.VectorReader) (int, error) {
	if kind != PredictionVectors && kind != SceneClassificationVectors {
		return 0, fmt.Errorf("unknown vector kind %q", kind)
	}
	defer vr.Close()
	inserted, skipped := 0, 0
	for {
		v, err := vr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return inserted, err
		}
		geom, err := d.geometry(v.Geometry, v.CRS)
		if err != nil {
			return inserted, err
		}
		res := d.db.WithContext(ctx).Table(string(kind)).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(map[string]interface{}{
				"raster_key":  rasterKey,
				"model_id":    modelID,
				"pixel_value": v.PixelValue,
				"geom":        geom,
				"crs":         v.CRS,
			})
		if res.Error != nil {
			return inserted, fmt.Errorf("insert vector: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			skipped++
			continue
		}
		inserted++
	}
	d.logger.Info("vectors saved", zap.String("table", string(kind)), zap.String("raster", rasterKey),
		zap.String("model", modelID), zap.Int("inserted", inserted), zap.Int("duplicates", skipped))
	return inserted, nil
}
