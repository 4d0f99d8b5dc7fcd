package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/ackruti/Oracle-etl-tool/cmd/compressors"
	"github.com/ackruti/Oracle-etl-tool/cmd/formatters"
	"github.com/ackruti/Oracle-etl-tool/cmd/gateway"
	"github.com/ackruti/Oracle-etl-tool/cmd/publish"
	"github.com/ackruti/Oracle-etl-tool/cmd/uploader"
)

// Static errors for configuration validation
var (
	ErrDatabaseHostRequired    = errors.New("database host is required")
	ErrDatabaseServiceRequired = errors.New("database service name is required for oracle")
	ErrDatabaseNameRequired    = errors.New("database name is required")
	ErrDatabasePortInvalid     = errors.New("database port must be between 1 and 65535")
	ErrStatementTimeoutInvalid = errors.New("database statement timeout must be >= 0")
	ErrLogFormatInvalid        = errors.New("log format must be one of: text, logfmt, json")
	ErrCredentialsFileRequired = errors.New("credentials file is required")
	ErrTableNameRequired       = errors.New("table name is required")
	ErrTableNameInvalid        = errors.New("table name is invalid: must be 1-128 characters, start with a letter or underscore, and contain only letters, numbers, underscores, and $ or #")
	ErrSchemaNameInvalid       = errors.New("schema name is invalid")
	ErrSeparatorInvalid        = errors.New("separator must be a single character")
	ErrChunkRowsMinimum        = errors.New("chunk rows must be at least 1000")
	ErrInsertBatchRowsInvalid  = errors.New("insert batch rows must be >= 0")
	ErrOutputsDisabled         = errors.New("both --no-excel and --no-parquet given, nothing to export")
	ErrS3RegionInvalid         = errors.New("S3 region contains invalid characters or is too long")
	ErrPathTemplateRequired    = errors.New("S3 path template is required when a bucket is set")
	ErrPathTemplateInvalid     = errors.New("S3 path template has an unknown placeholder")
)

const (
	regionAuto = "auto"

	defaultUploadTable  = "t_ibp_cons_rdc"
	defaultForecastName = "bomfc_dpv_detail_hist"
	defaultGroupColumn  = "DP_GROUP_MKT"
	defaultDateColumn   = "VALIDITY_DATE"

	// defaultForecastQuery selects the latest snapshot when queries.bomfc_dpv_detail_hist is unset.
	defaultForecastQuery = `SELECT *
FROM network_rw.bomfc_dpv_detail_hist
WHERE TRUNC(validity_date) = (SELECT TRUNC(MAX(validity_date)) FROM network_rw.bomfc_dpv_detail_hist)`
)

type Config struct {
	Debug     bool           `yaml:"debug"`
	LogFormat string         `yaml:"log_format"`
	LogFile   string         `yaml:"log_file"` // empty disables file logging
	Database  DatabaseConfig `yaml:"db"`
	App       AppConfig      `yaml:"app"`
	Download  DownloadConfig `yaml:"download"`
	Upload    UploadConfig   `yaml:"upload"`
	S3        S3Config       `yaml:"s3"`
}

type DatabaseConfig struct {
	Driver           string `yaml:"driver"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Service          string `yaml:"service"`
	Name             string `yaml:"name"`
	Schema           string `yaml:"schema"`
	SSLMode          string `yaml:"sslmode"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	StatementTimeout int    `yaml:"statement_timeout"` // Statement timeout in seconds (0 = no timeout)
	InsertBatchRows  int    `yaml:"insert_batch_rows"` // Rows per INSERT statement (0 = default)
}

type AppConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	DriveURL        string `yaml:"drive_url"`
	OutputDir       string `yaml:"output_dir"`
}

type DownloadConfig struct {
	Query       string `yaml:"query"`
	GroupColumn string `yaml:"group_column"`
	DateColumn  string `yaml:"date_column"`
	NoExcel     bool   `yaml:"no_excel"`
	NoParquet   bool   `yaml:"no_parquet"`
	OpenDrive   bool   `yaml:"open_drive"`
	OpenFolder  bool   `yaml:"open_folder"`
	ChunkRows   int    `yaml:"chunk_rows"`
	Compression string `yaml:"compression"`
	// Format of the per-market files: xlsx, csv or parquet
	Format string `yaml:"format"`
	// CSVCompression wraps per-market csv files: none, gzip, zstd, lz4
	CSVCompression string `yaml:"csv_compression"`
}

type UploadConfig struct {
	Table     string `yaml:"table"`
	Schema    string `yaml:"schema"`
	File      string `yaml:"file"`
	Separator string `yaml:"separator"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Region       string `yaml:"region"`
	PathTemplate string `yaml:"path_template"`
}

// loadConfig builds the configuration from viper once per command.
func loadConfig() *Config {
	query := viper.GetString("queries." + defaultForecastName)
	if query == "" {
		query = defaultForecastQuery
	}

	logFile := viper.GetString("log_file")
	if viper.GetBool("no_log_file") {
		logFile = ""
	}

	return &Config{
		Debug:     viper.GetBool("debug"),
		LogFormat: viper.GetString("log_format"),
		LogFile:   logFile,
		Database: DatabaseConfig{
			Driver:           viper.GetString("db.driver"),
			Host:             viper.GetString("db.host"),
			Port:             viper.GetInt("db.port"),
			Service:          viper.GetString("db.service"),
			Name:             viper.GetString("db.name"),
			Schema:           viper.GetString("db.schema"),
			SSLMode:          viper.GetString("db.sslmode"),
			User:             viper.GetString("db.user"),
			Password:         viper.GetString("db.password"),
			StatementTimeout: viper.GetInt("db.statement_timeout"),
			InsertBatchRows:  viper.GetInt("db.insert_batch_rows"),
		},
		App: AppConfig{
			CredentialsFile: viper.GetString("app.credentials_file"),
			DriveURL:        viper.GetString("app.drive_url"),
			OutputDir:       viper.GetString("app.output_dir"),
		},
		Download: DownloadConfig{
			Query:       query,
			GroupColumn: viper.GetString("download.group_column"),
			DateColumn:  viper.GetString("download.date_column"),
			NoExcel:     viper.GetBool("download.no_excel"),
			NoParquet:   viper.GetBool("download.no_parquet"),
			OpenDrive:   viper.GetBool("download.open_drive"),
			OpenFolder:  viper.GetBool("download.open_folder"),
			ChunkRows:   viper.GetInt("download.chunk_rows"),
			Compression: viper.GetString("download.compression"),

			Format:         viper.GetString("download.format"),
			CSVCompression: viper.GetString("download.csv_compression"),
		},
		Upload: UploadConfig{
			Table:     viper.GetString("upload.table"),
			Schema:    viper.GetString("upload.schema"),
			File:      viper.GetString("upload.file"),
			Separator: viper.GetString("upload.separator"),
		},
		S3: S3Config{
			Endpoint:     viper.GetString("s3.endpoint"),
			Bucket:       viper.GetString("s3.bucket"),
			AccessKey:    viper.GetString("s3.access_key"),
			SecretKey:    viper.GetString("s3.secret_key"),
			Region:       viper.GetString("s3.region"),
			PathTemplate: viper.GetString("s3.path_template"),
		},
	}
}

// validIdentifier accepts unquoted Oracle, PostgreSQL and MySQL identifiers
// to prevent SQL injection attacks
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$#]*$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	return validIdentifier.MatchString(name)
}

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" || len(region) > 50 {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, region)
	return matched
}

// isValidDriver validates the database driver
func isValidDriver(driver string) bool {
	validDrivers := map[string]bool{
		gateway.DriverOracle:   true,
		gateway.DriverPostgres: true,
		gateway.DriverMySQL:    true,
		gateway.DriverSQLite:   true,
	}
	return validDrivers[driver]
}

// isValidLogFormat validates the log format
func isValidLogFormat(format string) bool {
	validFormats := map[string]bool{
		"text":   true,
		"logfmt": true,
		"json":   true,
	}
	return validFormats[format]
}

// isValidCompression validates the parquet compression codec
func isValidCompression(compression string) bool {
	validCompressions := map[string]bool{
		formatters.CompressionSnappy: true,
		formatters.CompressionNone:   true,
		formatters.CompressionZstd:   true,
		formatters.CompressionGzip:   true,
		formatters.CompressionLZ4:    true,
	}
	return validCompressions[compression]
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if !isValidLogFormat(c.LogFormat) {
		return fmt.Errorf("%w: '%s'", ErrLogFormatInvalid, c.LogFormat)
	}

	if !isValidDriver(c.Database.Driver) {
		return fmt.Errorf("%w: '%s'", gateway.ErrDriverUnsupported, c.Database.Driver)
	}

	switch c.Database.Driver {
	case gateway.DriverSQLite:
		if c.Database.Name == "" {
			return ErrDatabaseNameRequired
		}
	case gateway.DriverOracle:
		if c.Database.Host == "" {
			return ErrDatabaseHostRequired
		}
		if c.Database.Service == "" {
			return ErrDatabaseServiceRequired
		}
	default:
		if c.Database.Host == "" {
			return ErrDatabaseHostRequired
		}
		if c.Database.Name == "" {
			return ErrDatabaseNameRequired
		}
	}

	// Port 0 selects the driver default
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, c.Database.Port)
	}

	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("%w, got %d", ErrStatementTimeoutInvalid, c.Database.StatementTimeout)
	}

	if c.Database.InsertBatchRows < 0 {
		return fmt.Errorf("%w, got %d", ErrInsertBatchRowsInvalid, c.Database.InsertBatchRows)
	}

	if c.Database.User == "" && c.App.CredentialsFile == "" {
		return ErrCredentialsFileRequired
	}

	return nil
}

// ValidateDownload checks the settings of download-forecast.
func (c *Config) ValidateDownload() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Download.NoExcel && c.Download.NoParquet {
		return ErrOutputsDisabled
	}

	if c.Download.ChunkRows != 0 && c.Download.ChunkRows < 1000 {
		return fmt.Errorf("%w, got %d", ErrChunkRowsMinimum, c.Download.ChunkRows)
	}

	if !isValidCompression(c.Download.Compression) {
		return fmt.Errorf("%w: '%s'", formatters.ErrCompressionInvalid, c.Download.Compression)
	}

	if _, err := formatters.GetFormatter(c.exportFormat(), formatters.Options{Compression: c.Download.Compression}); err != nil {
		return err
	}
	if _, err := compressors.GetCompressor(c.Download.CSVCompression); err != nil {
		return err
	}

	if c.S3.Bucket != "" {
		if c.S3.Region != "" && c.S3.Region != regionAuto && !isValidRegion(c.S3.Region) {
			return fmt.Errorf("%w: %s", ErrS3RegionInvalid, c.S3.Region)
		}
		if c.S3.PathTemplate == "" {
			return ErrPathTemplateRequired
		}
		if !isValidPathTemplate(c.S3.PathTemplate) {
			return fmt.Errorf("%w: '%s'", ErrPathTemplateInvalid, c.S3.PathTemplate)
		}
	}

	return nil
}

// ValidateUpload checks the settings of upload-data.
func (c *Config) ValidateUpload() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Upload.Table == "" {
		return ErrTableNameRequired
	}
	if !isValidTableName(c.Upload.Table) {
		return fmt.Errorf("%w: '%s'", ErrTableNameInvalid, c.Upload.Table)
	}
	if c.Upload.Schema != "" && !isValidTableName(c.Upload.Schema) {
		return fmt.Errorf("%w: '%s'", ErrSchemaNameInvalid, c.Upload.Schema)
	}

	if utf8.RuneCountInString(c.separator()) != 1 {
		return fmt.Errorf("%w: %q", ErrSeparatorInvalid, c.Upload.Separator)
	}

	return nil
}

// exportFormat returns the per-market file format, xlsx when unset.
func (c *Config) exportFormat() string {
	if c.Download.Format == "" {
		return formatters.FormatXLSX
	}
	return formatters.NormalizeFormat(c.Download.Format)
}

// separator returns the upload separator, unescaping the common "\t" spelling.
func (c *Config) separator() string {
	if c.Upload.Separator == `\t` {
		return "\t"
	}
	return c.Upload.Separator
}

func (c *Config) gatewayConfig() gateway.Config {
	return gateway.Config{
		Driver:           c.Database.Driver,
		Host:             c.Database.Host,
		Port:             c.Database.Port,
		Service:          c.Database.Service,
		Name:             c.Database.Name,
		SSLMode:          c.Database.SSLMode,
		StatementTimeout: time.Duration(c.Database.StatementTimeout) * time.Second,
		InsertBatchRows:  c.Database.InsertBatchRows,
	}
}

func (c *Config) publishConfig() publish.Config {
	return publish.Config{
		Endpoint:  c.S3.Endpoint,
		Bucket:    c.S3.Bucket,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		Region:    c.S3.Region,
	}
}

func (c *Config) uploadOptions() uploader.Options {
	return uploader.Options{
		DateColumn: uploader.DefaultDateColumn,
		DateLayout: uploader.DefaultDateLayout,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Database.Password != "" {
		out.Database.Password = "********"
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = "********"
	}
	return out
}
