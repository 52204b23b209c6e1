package httpflv

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"livepush/src/protocol/rtmp"
)

// PublisherSource looks up live streams by "app/name".
type PublisherSource interface {
	GetPublisher(name string) *rtmp.Publisher
}

func NewHTTPFLVServer(src PublisherSource) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/{app}/{name}", StreamHandler(src)).Methods(http.MethodGet)
	return r
}

// StreamHandler plays /{app}/{name}[.flv] until the client leaves or the
// stream ends.
func StreamHandler(src PublisherSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		pubName := vars["app"] + "/" + strings.TrimSuffix(vars["name"], ".flv")
		pub := src.GetPublisher(pubName)
		if pub == nil {
			http.Error(w, "stream not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "video/x-flv")
		w.WriteHeader(http.StatusOK)

		flvWriter := NewFLVWriter(w)
		if err := pub.AddConsumer(flvWriter); err != nil {
			flvWriter.Wait()
			return
		}
		logrus.Infof("[%s] playing %s", flvWriter.Name(), pubName)

		select {
		case <-flvWriter.Done():
		case <-r.Context().Done():
		case <-pub.Done():
		}
		pub.RemoveConsumer(flvWriter.Name())
		flvWriter.Close()
		flvWriter.Wait()
		logrus.Infof("[%s] stopped playing %s, dropped %d packets", flvWriter.Name(), pubName, flvWriter.Dropped())
	}
}
