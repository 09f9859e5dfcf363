// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package selection

import "github.com/sfshare/sfshare/internal/slogutil"

func init() { slogutil.RegisterPackage("selection", "Selecting files to send") }
