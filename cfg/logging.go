// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import "github.com/reiser4/reiser4fs/internal/logger"

// ToLoggerConfig converts the bound mount options into the logger
// package's self-contained Config, keeping logger free of a cfg import.
func (c LoggingConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		FilePath: c.FilePath,
		Format:   c.Format,
		Severity: string(c.Severity),
		LogRotateConfig: logger.LogRotateConfig{
			MaxFileSizeMB:   c.LogRotate.MaxFileSizeMb,
			BackupFileCount: c.LogRotate.BackupFileCount,
			Compress:        c.LogRotate.Compress,
		},
	}
}
