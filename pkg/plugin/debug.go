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
	"context"
	"fmt"
	"io"
	"os"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/appvolume-shm/internal/logger"
	"github.com/srediag/appvolume-shm/pkg/shm"
)

// SetLogLevel changes the level of every logger of this module.
func SetLogLevel(l int) {
	logger.SetLevel(l)
}

// DumpState writes the header and every occupied slot of st to w.
func DumpState(w io.Writer, st *shm.State) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	h := &st.Header
	fmt.Fprintf(buf, "version:%d entries:%d generation:%d writerPid:%d writerUid:%d\n",
		h.Version(), h.EntryCount(), h.Generation(), h.LastWriterPID(), h.LastWriterUID())
	for i := range st.Entries {
		e := &st.Entries[i]
		if e.Empty() {
			continue
		}
		fmt.Fprintf(buf, "slot:%d hash:%016x gain:%.3f muted:%t updated:%d id:%s\n",
			i, e.Hash, e.Gain, e.Muted(), e.LastUpdate, e.ID.String())
	}
	_, err := w.Write(buf.B)
	return err
}

// DebugStateDetail prints the shared state stored at path. The file is
// mapped, never created.
func DebugStateDetail(path string) {
	a := shm.NewAccessor(shm.WithPath(path))
	if err := a.MapFor(context.Background(), uint32(os.Getuid()), false); err != nil {
		fmt.Println(err)
		return
	}
	defer func() { _ = a.Unmap() }()
	fmt.Printf("path:%s\n", a.Path())
	if err := DumpState(os.Stdout, a.State()); err != nil {
		fmt.Println(err)
	}
}
