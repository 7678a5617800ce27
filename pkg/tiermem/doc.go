// Copyright 2021 Intel Corporation. All Rights Reserved.
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

// Package tiermem manages page placement across a fast (DRAM) and a slow
// (remote/REM) memory tier. It samples hardware load-latency events,
// classifies pages as hot or cold from the sample stream, migrates hot
// pages into DRAM and cold pages out of it under a fixed DRAM budget, and
// predicts which neighboring pages are likely to be touched next so that
// migration can stay ahead of the access pattern.
package tiermem
