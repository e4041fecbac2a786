package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
)

const moduleName = "config"

// loadConfig loads configuration from the embedded YAML and environment variables.
// This function is intended to be called only once during application startup.
//
// Parameters:
//   envFilePath: The path to the .env file.
//   embeddedConfig: The embedded configuration bytes.
// Returns:
//   A pointer to the loaded Config and an error if loading fails.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	// 1. Defaults from NewConfig()

	// 2. Parse the embedded YAML into a temporary Config so values land with
	// their proper types.
	var yamlConfig Config
	if err := yaml.Unmarshal(embeddedConfig, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	// 3. Merge YAML configuration into the defaults.
	mergeConfig(cfg, &yamlConfig)

	// 4. Override with environment variables.
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// LoadConfig loads configuration from the embedded YAML, an optional .env file,
// and environment variables. It also sets the global log level and validates
// exception class names referenced by the retry/skip policies.
//
// Parameters:
//   envFilePath: The path to the .env file.
//   embeddedConfig: The embedded configuration bytes.
// Returns:
//   A pointer to the loaded Config and an error if loading or validation fails.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(envFilePath, embeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Ripple.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Ripple.System.Logging.Level)

	if err := validateExceptionClasses(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}

	return cfg, nil
}

// validateExceptionClasses validates that configured exception class names exist in the registry.
func validateExceptionClasses(cfg *Config) error {
	if cfg.Ripple.Batch.ItemRetry.RetryableExceptions != nil {
		if err := checkExceptionClasses(cfg.Ripple.Batch.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
			return err
		}
	}

	if cfg.Ripple.Batch.ItemSkip.SkippableExceptions != nil {
		if err := checkExceptionClasses(cfg.Ripple.Batch.ItemSkip.SkippableExceptions, "ItemSkip"); err != nil {
			return err
		}
	}

	return nil
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Values in sourceConfig overwrite corresponding values in destConfig
// if they are not zero/empty values for their type.
//
// Parameters:
//   destConfig: The destination Config to merge into.
//   sourceConfig: The source Config to merge from.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergeRippleConfig(&destConfig.Ripple, &sourceConfig.Ripple)
}

// mergeRippleConfig merges source into dest.
func mergeRippleConfig(dest, source *RippleConfig) {
	mergeBatchConfig(&dest.Batch, &source.Batch)
	mergeStoreConfig(&dest.Store, &source.Store)
	mergeCompletionConfig(&dest.Completion, &source.Completion)

	if source.Metadata.Database != "" {
		dest.Metadata.Database = source.Metadata.Database
	}
	if source.Metrics.PushgatewayURL != "" {
		dest.Metrics.PushgatewayURL = source.Metrics.PushgatewayURL
	}
	if source.Export.BaseDir != "" {
		dest.Export.BaseDir = source.Export.BaseDir
	}

	mergeSystemConfig(&dest.System, &source.System)
}

// mergeBatchConfig merges source into dest.
func mergeBatchConfig(dest, source *BatchConfig) {
	if source.JobName != "" {
		dest.JobName = source.JobName
	}
	if source.ChunkSize != 0 {
		dest.ChunkSize = source.ChunkSize
	}
	if source.PageSize != 0 {
		dest.PageSize = source.PageSize
	}
	if source.MaxPages != 0 {
		dest.MaxPages = source.MaxPages
	}
	if source.ChunkDelaySeconds != 0 {
		dest.ChunkDelaySeconds = source.ChunkDelaySeconds
	}
	if source.CommitInterval != 0 {
		dest.CommitInterval = source.CommitInterval
	}
	mergeItemRetryConfig(&dest.ItemRetry, &source.ItemRetry)
	mergeItemSkipConfig(&dest.ItemSkip, &source.ItemSkip)
}

// mergeStoreConfig merges source into dest.
func mergeStoreConfig(dest, source *StoreConfig) {
	if source.AuthURL != "" {
		dest.AuthURL = source.AuthURL
	}
	if source.ClientID != "" {
		dest.ClientID = source.ClientID
	}
	if source.ClientSecret != "" {
		dest.ClientSecret = source.ClientSecret
	}
	if source.TimeoutSeconds != 0 {
		dest.TimeoutSeconds = source.TimeoutSeconds
	}
}

// mergeCompletionConfig merges source into dest.
func mergeCompletionConfig(dest, source *CompletionConfig) {
	if source.Backend != "" {
		dest.Backend = source.Backend
	}
	if source.BaseURL != "" {
		dest.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		dest.Model = source.Model
	}
	if source.TimeoutSeconds != 0 {
		dest.TimeoutSeconds = source.TimeoutSeconds
	}
	if source.GeminiAPIKey != "" {
		dest.GeminiAPIKey = source.GeminiAPIKey
	}
	if source.GeminiModel != "" {
		dest.GeminiModel = source.GeminiModel
	}
}

// mergeItemRetryConfig merges source into dest.
func mergeItemRetryConfig(dest, source *ItemRetryConfig) {
	if source.MaxAttempts != 0 {
		dest.MaxAttempts = source.MaxAttempts
	}
	if source.InitialInterval != 0 {
		dest.InitialInterval = source.InitialInterval
	}
	if source.RetryableExceptions != nil {
		dest.RetryableExceptions = source.RetryableExceptions
	}
}

// mergeItemSkipConfig merges source into dest.
func mergeItemSkipConfig(dest, source *ItemSkipConfig) {
	if source.SkipLimit != 0 {
		dest.SkipLimit = source.SkipLimit
	}
	if source.SkippableExceptions != nil {
		dest.SkippableExceptions = source.SkippableExceptions
	}
}

// mergeSystemConfig merges source into dest.
func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" {
		dest.Timezone = source.Timezone
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
}

// checkExceptionClasses validates that all exception class names in the provided list
// are registered in the exception registry.
//
// Parameters:
//   classNames: A slice of strings representing exception class names.
//   configType: A string indicating the configuration type (e.g., "ItemRetry", "ItemSkip") for error messages.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'. Ensure it is registered.", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
//
// Parameters:
//   val: The reflect.Value of the struct to populate.
//   prefix: The prefix for environment variable names (e.g., "RIPPLE_BATCH_").
// Returns: An error if any field cannot be set.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, bool, and []string types.
//
// Parameters:
//   field: The reflect.Value of the field to set.
//   value: The string value to convert and set.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
