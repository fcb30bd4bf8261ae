/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package plugin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	s.Require().NoError(VerifyConfig(DefaultConfig()))
	s.Require().Error(VerifyConfig(nil))

	config := DefaultConfig()
	config.MaxGain = 0
	s.Require().Error(VerifyConfig(config))
	config.MaxGain = float32(math.NaN())
	s.Require().Error(VerifyConfig(config))
	config.MaxGain = float32(math.Inf(1))
	s.Require().Error(VerifyConfig(config))
	config.MaxGain = 2
	s.Require().NoError(VerifyConfig(config))

	config.PollInterval = 0
	s.Require().Error(VerifyConfig(config))
	config.PollInterval = defaultPollInterval

	config.WatchWorkers = 0
	s.Require().Error(VerifyConfig(config))
	config.WatchWorkers = 1

	config.WatchQueueHint = -1
	s.Require().Error(VerifyConfig(config))
	config.WatchQueueHint = 1

	config.MapRetryInterval = -1
	s.Require().Error(VerifyConfig(config))
	config.MapRetryInterval = 0

	config.Meter = nil
	s.Require().Error(VerifyConfig(config))
	config.Meter = DefaultConfig().Meter

	config.LogOutput = nil
	s.Require().Error(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestCreateDriverByWrongConfig() {
	config := DefaultConfig()
	config.MaxGain = -1
	d, err := NewDriver(config)
	s.Require().Error(err)
	s.Require().Nil(d)
}

func (s *ConfigTestSuite) TestCreateDriverWithoutConfig() {
	d, err := NewDriver(nil)
	s.Require().NoError(err)
	s.Require().NotNil(d)
	s.Equal(defaultMaxGain, d.config.MaxGain)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
